package postgres

import (
	"strings"
	"testing"
)

func TestSlowMoversQuery_UsesDollarPlaceholders(t *testing.T) {
	query, args, err := slowMoversQuery(3).ToSql()
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	if len(args) != 1 || args[0] != int64(3) {
		t.Fatalf("unexpected args %v", args)
	}
	if want := "HAVING COALESCE(SUM(l.quantity), 0) <= $1"; !strings.Contains(query, want) {
		t.Fatalf("expected %q in query %q", want, query)
	}
	if !strings.Contains(query, "LEFT JOIN order_lines l") {
		t.Fatalf("expected left join so unordered articles are kept: %q", query)
	}
}

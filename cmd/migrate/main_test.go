package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/storage/postgres"
)

type fakeMigrator struct {
	upSteps   []int
	downSteps []int
	state     postgres.MigrationState
	upErr     error
	closed    bool
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.upSteps = append(f.upSteps, steps)
	return f.upErr
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.downSteps = append(f.downSteps, steps)
	return nil
}

func (f *fakeMigrator) MigrationStatus(context.Context) (postgres.MigrationState, error) {
	return f.state, nil
}

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

func executeMigrate(t *testing.T, fake *fakeMigrator, env map[string]string, args ...string) (string, string, error) {
	t.Helper()

	var openedDSN string
	open := func(_ context.Context, dsn string) (migrator, error) {
		openedDSN = dsn
		return fake, nil
	}
	getenv := func(key string) string { return env[key] }

	cmd := newRootCmd(open, getenv)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), openedDSN, err
}

func TestMigrateUp_UsesFlagDSNAndPrintsState(t *testing.T) {
	fake := &fakeMigrator{state: postgres.MigrationState{
		Version: 3,
		Applied: 3,
		Pending: []postgres.MigrationInfo{{Version: 4, Name: "idempotency"}},
	}}

	out, dsn, err := executeMigrate(t, fake, map[string]string{envPostgresDSN: "postgres://env"},
		"up", "--steps", "2", "--dsn", " postgres://flag ")
	if err != nil {
		t.Fatalf("migrate up failed: %v", err)
	}
	if dsn != "postgres://flag" {
		t.Fatalf("expected --dsn to win over env, got %q", dsn)
	}
	if len(fake.upSteps) != 1 || fake.upSteps[0] != 2 {
		t.Fatalf("unexpected up steps: %v", fake.upSteps)
	}
	if !fake.closed {
		t.Fatal("store must be closed")
	}
	if !strings.Contains(out, "migrate up ok: version=3 applied=3 pending=1") || !strings.Contains(out, "pending 0004 idempotency") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestMigrateDown_DefaultsToOneStepAndEnvDSN(t *testing.T) {
	fake := &fakeMigrator{}

	_, dsn, err := executeMigrate(t, fake, map[string]string{envPostgresDSN: "postgres://env"}, "down")
	if err != nil {
		t.Fatalf("migrate down failed: %v", err)
	}
	if dsn != "postgres://env" {
		t.Fatalf("expected env DSN fallback, got %q", dsn)
	}
	if len(fake.downSteps) != 1 || fake.downSteps[0] != 1 {
		t.Fatalf("unexpected down steps: %v", fake.downSteps)
	}
}

func TestMigrate_Errors(t *testing.T) {
	if _, _, err := executeMigrate(t, &fakeMigrator{}, nil, "status"); err == nil || !strings.Contains(err.Error(), envPostgresDSN) {
		t.Fatalf("expected missing DSN error, got %v", err)
	}

	env := map[string]string{envPostgresDSN: "postgres://env"}
	if _, _, err := executeMigrate(t, &fakeMigrator{}, env, "down", "--steps", "0"); err == nil {
		t.Fatal("expected error for zero down steps")
	}
	if _, _, err := executeMigrate(t, &fakeMigrator{}, env, "up", "--steps", "-1"); err == nil {
		t.Fatal("expected error for negative up steps")
	}
	if _, _, err := executeMigrate(t, &fakeMigrator{}, env, "sideways"); err == nil {
		t.Fatal("expected error for unknown command")
	}

	failing := &fakeMigrator{upErr: errors.New("boom")}
	if _, _, err := executeMigrate(t, failing, env, "up"); err == nil || !strings.Contains(err.Error(), "migrate up failed") {
		t.Fatalf("expected wrapped migrate error, got %v", err)
	}
	if !failing.closed {
		t.Fatal("store must be closed on failure")
	}
}

func TestMigrateStatus_ListsModifiedMigrations(t *testing.T) {
	fake := &fakeMigrator{state: postgres.MigrationState{
		Version:  4,
		Applied:  4,
		Modified: []postgres.MigrationInfo{{Version: 2, Name: "outbox_timeline"}},
	}}

	out, _, err := executeMigrate(t, fake, map[string]string{envPostgresDSN: "postgres://env"}, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "migration status: version=4 applied=4 pending=0") ||
		!strings.Contains(out, "modified 0002 outbox_timeline") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

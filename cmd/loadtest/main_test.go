package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/reference"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/customers"
	"github.com/vladislavdragonenkov/shop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shop/internal/service/ordering"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
	httptransport "github.com/vladislavdragonenkov/shop/internal/transport/http"
)

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-base-url", "http://shop.local:8080/",
		"-total", "10",
		"-concurrency", "2",
		"-unresolvable-rate", "50",
		"-timeout", "250ms",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.baseURL != "http://shop.local:8080" {
		t.Fatalf("expected trailing slash to be trimmed, got %s", cfg.baseURL)
	}
	if !cfg.totalSet || cfg.total != 10 {
		t.Fatalf("unexpected total: %d (set=%v)", cfg.total, cfg.totalSet)
	}
	if cfg.timeout != 250*time.Millisecond {
		t.Fatalf("unexpected timeout: %s", cfg.timeout)
	}

	invalid := [][]string{
		{"-concurrency", "0"},
		{"-unresolvable-rate", "101"},
		{"-lines", "0"},
		{"-articles", "-1"},
		{"-duration", "-1s"},
		{"-total", "0"},
		{"-duration", "1s", "-total", "0"},
		{"-base-url", " "},
		{"-timeout", "nope"},
	}
	for _, args := range invalid {
		if _, err := parseConfig(args, io.Discard); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}

func TestDispatchJobs(t *testing.T) {
	jobs := make(chan int, 10)
	dispatchJobs(jobs, config{total: 5})

	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	if len(got) != 5 || got[4] != 4 {
		t.Fatalf("unexpected jobs: %v", got)
	}

	bounded := make(chan int, 100)
	dispatchJobs(bounded, config{duration: time.Second, total: 3, totalSet: true})
	count := 0
	for range bounded {
		count++
	}
	if count != 3 {
		t.Fatalf("expected total to bound duration mode, got %d jobs", count)
	}
}

func TestCollectorAndReport(t *testing.T) {
	col := newCollector()
	col.record(scenarioCall, 10*time.Millisecond, "201", true)
	col.record(scenarioCall, 30*time.Millisecond, "404", false)
	col.record(createOrderCall, 5*time.Millisecond, "201", true)
	col.addDropped(2)

	result := col.buildReport(time.Now(), 2*time.Second)
	if result.TotalScenarios != 2 || result.FailedScenarios != 1 {
		t.Fatalf("unexpected scenario totals: %+v", result)
	}
	if result.ErrorRate != 0.5 {
		t.Fatalf("unexpected error rate: %f", result.ErrorRate)
	}
	if result.RPS != 1 {
		t.Fatalf("unexpected rps: %f", result.RPS)
	}
	if result.DroppedLines != 2 {
		t.Fatalf("unexpected dropped lines: %d", result.DroppedLines)
	}
	if result.Calls[scenarioCall].Codes["404"] != 1 {
		t.Fatalf("expected 404 code to be counted: %+v", result.Calls[scenarioCall])
	}

	var out bytes.Buffer
	printReport(&out, result, config{total: 2})
	if !strings.Contains(out.String(), "CreateOrder: calls=1") || strings.Contains(out.String(), "scenario: calls") {
		t.Fatalf("unexpected printed report:\n%s", out.String())
	}
}

func TestLatencyHelpers(t *testing.T) {
	summary := buildLatencySummary([]float64{4, 1, 3, 2})
	if summary.Min != 1 || summary.Max != 4 || summary.Avg != 2.5 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if got := percentile([]float64{1, 2, 3, 4, 5}, 50); got != 3 {
		t.Fatalf("unexpected p50: %f", got)
	}
	if got := percentile([]float64{1, 2}, 50); got != 1.5 {
		t.Fatalf("unexpected interpolated p50: %f", got)
	}
	if (buildLatencySummary(nil) != latencySummary{}) {
		t.Fatal("expected zero summary for no samples")
	}
	if ratio(1, 0) != 0 {
		t.Fatal("expected zero ratio for zero total")
	}
}

func TestCarriesUnresolvable(t *testing.T) {
	hits := 0
	for i := 0; i < 200; i++ {
		if carriesUnresolvable(i, 25) {
			hits++
		}
	}
	if hits != 50 {
		t.Fatalf("expected 25%% of scenarios, got %d of 200", hits)
	}
	if carriesUnresolvable(0, 0) || !carriesUnresolvable(99, 100) {
		t.Fatal("unexpected boundary behaviour")
	}
}

func TestWriteJSONReport(t *testing.T) {
	t.Chdir(t.TempDir())

	if err := writeJSONReport("report.json", report{TotalScenarios: 3}); err != nil {
		t.Fatalf("writeJSONReport failed: %v", err)
	}
	data, err := os.ReadFile("report.json")
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil || decoded.TotalScenarios != 3 {
		t.Fatalf("unexpected report content: %s (%v)", data, err)
	}

	if err := writeJSONReport(filepath.Join("..", "escape.json"), report{}); err == nil {
		t.Fatal("expected error for path outside current directory")
	}
	if err := writeJSONReport(".", report{}); err == nil {
		t.Fatal("expected error for directory path")
	}
}

func TestRunAgainstInMemoryAPI(t *testing.T) {
	srv := newInMemoryAPI(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-base-url", srv.URL,
		"-total", "20",
		"-concurrency", "4",
		"-articles", "3",
		"-unresolvable-rate", "50",
	}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("expected exit code 0, got %d\nstdout:\n%s\nstderr:\n%s", code, stdout.String(), stderr.String())
	}
	if !strings.Contains(stdout.String(), "total=20 success=20 failed=0") {
		t.Fatalf("unexpected summary:\n%s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "dropped_lines=10") {
		t.Fatalf("expected half of the orders to drop one line:\n%s", stdout.String())
	}
}

func TestRunFailsWhenAPIUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	if code := run(context.Background(), []string{"-base-url", srv.URL, "-total", "1"}, io.Discard, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "failed to prepare fixture") {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}
}

// newInMemoryAPI поднимает настоящий HTTP API поверх in-memory хранилища.
func newInMemoryAPI(t *testing.T) *httptest.Server {
	t.Helper()

	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	entry := logger.WithField("component", "test")
	reg := prometheus.NewRegistry()

	mapper, err := reference.NewMapper(srv.URL)
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}

	store := memory.NewStore()
	assembler := ordering.NewAssembler(store.Articles(), store.Orders(),
		ordering.WithLogger(entry),
		ordering.WithMetrics(metrics.NewOrderMetricsWithRegisterer(reg)),
	)
	handler = httptransport.NewRouter(httptransport.Services{
		Orders: ordering.NewService(assembler, store.Orders(), store.Customers(),
			memory.NewTimelineRepository(), memory.NewOutboxRepository(), entry),
		Projector: ordering.NewProjector(mapper),
		Catalog:   catalog.NewService(store.Articles(), entry),
		Customers: customers.NewService(store.Customers(), entry),
		Mapper:    mapper,
		Guard: idempotency.NewGuard(memory.NewIdempotencyRepository(), time.Hour, entry,
			metrics.NewIdempotencyMetricsWithRegisterer(reg)),
	}, httptransport.Options{
		Logger:  entry,
		Metrics: metrics.NewHTTPMetricsWithRegisterer(reg),
	})

	return srv
}

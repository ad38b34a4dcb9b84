// Command loadtest нагружает POST /orders и печатает сводку latency и кодов ответов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	scenarioCall    = "scenario"
	createOrderCall = "CreateOrder"
	transportError  = "transport_error"
)

type config struct {
	baseURL          string
	total            int
	totalSet         bool
	duration         time.Duration
	concurrency      int
	timeout          time.Duration
	articles         int
	linesPerOrder    int
	unresolvableRate int
	idempotent       bool
	outputPath       string
}

func parseConfig(args []string, stderr io.Writer) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "public base URL of the shop API")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.IntVar(&cfg.articles, "articles", 5, "number of articles created before the run")
	fs.IntVar(&cfg.linesPerOrder, "lines", 3, "resolvable lines per order")
	fs.IntVar(&cfg.unresolvableRate, "unresolvable-rate", 10, "share of orders (0..100, percent) carrying one unresolvable article reference")
	fs.BoolVar(&cfg.idempotent, "idempotent", true, "send a unique Idempotency-Key with every order")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return cfg, errors.New("base-url is required")
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.articles <= 0 {
		return cfg, errors.New("articles must be > 0")
	}
	if cfg.linesPerOrder <= 0 {
		return cfg, errors.New("lines must be > 0")
	}
	if cfg.unresolvableRate < 0 || cfg.unresolvableRate > 100 {
		return cfg, errors.New("unresolvable-rate must be between 0 and 100")
	}

	return cfg, nil
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run возвращает код выхода: 0 без неуспешных сценариев, 1 иначе, 2 при ошибке конфигурации.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := parseConfig(args, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}

	client := newShopClient(cfg.baseURL, cfg.timeout)
	runID := uuid.NewString()[:8]

	fixture, err := prepareFixture(ctx, client, cfg, runID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "failed to prepare fixture: %v\n", err)
		return 1
	}

	startedAt := time.Now()
	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)

	var wg sync.WaitGroup
	for w := 0; w < cfg.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				runScenario(ctx, client, cfg, fixture, index, col)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	printReport(stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(stderr, "failed to write report: %v\n", err)
			return 1
		}
	}

	if result.FailedScenarios > 0 {
		return 1
	}
	return 0
}

// fixture — клиент и артикулы, на которые ссылаются заказы прогона.
type fixture struct {
	customerURI string
	articleURIs []string
}

func prepareFixture(ctx context.Context, client *shopClient, cfg config, runID string) (fixture, error) {
	customerURI, err := client.createCustomer(ctx, runID)
	if err != nil {
		return fixture{}, err
	}

	out := fixture{customerURI: customerURI, articleURIs: make([]string, 0, cfg.articles)}
	for i := 0; i < cfg.articles; i++ {
		uri, err := client.createArticle(ctx, fmt.Sprintf("lt-%s-%d", runID, i))
		if err != nil {
			return fixture{}, err
		}
		out.articleURIs = append(out.articleURIs, uri)
	}
	return out, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// buildOrder собирает тело заказа и число позиций, которые сервис должен отбросить.
func buildOrder(client *shopClient, cfg config, fx fixture, index int) (orderBody, int) {
	order := orderBody{CustomerURI: fx.customerURI, Lines: make([]orderLineBody, 0, cfg.linesPerOrder+1)}
	for i := 0; i < cfg.linesPerOrder; i++ {
		order.Lines = append(order.Lines, orderLineBody{
			ArticleURI: fx.articleURIs[(index+i)%len(fx.articleURIs)],
			Quantity:   int32(1 + i%3),
		})
	}

	expectedDropped := 0
	if carriesUnresolvable(index, cfg.unresolvableRate) {
		order.Lines = append(order.Lines, orderLineBody{ArticleURI: client.unresolvableArticleURI(index), Quantity: 1})
		expectedDropped = 1
	}
	return order, expectedDropped
}

func runScenario(ctx context.Context, client *shopClient, cfg config, fx fixture, index int, col *collector) {
	start := time.Now()
	order, expectedDropped := buildOrder(client, cfg, fx, index)

	key := ""
	if cfg.idempotent {
		key = uuid.NewString()
	}

	outcome, err := client.createOrder(ctx, order, key)
	code := transportError
	if outcome.status != 0 {
		code = strconv.Itoa(outcome.status)
	}

	ok := err == nil && outcome.status == http.StatusCreated
	col.record(createOrderCall, time.Since(start), code, ok)
	if ok {
		col.addDropped(outcome.dropped)
		ok = outcome.dropped == expectedDropped
	}
	col.record(scenarioCall, time.Since(start), code, ok)
}

func carriesUnresolvable(index, rate int) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 100 {
		return true
	}
	return index%100 < rate
}

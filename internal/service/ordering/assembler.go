// Package ordering собирает заказ из внешних ссылок и сохраняет его вместе с побочными событиями.
package ordering

import (
	"context"
	"errors"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/reference"
)

const tracerName = "github.com/vladislavdragonenkov/shop/internal/service/ordering"

// Result — сохранённый заказ и позиции, отброшенные при сверке.
type Result struct {
	Order   domain.Order
	Dropped []DroppedLine
}

// Assembler выполняет конвейер: разбор ссылок, пакетный поиск артикулов, сверка, сохранение.
// Не хранит изменяемого состояния между вызовами и безопасен для конкурентного использования.
type Assembler struct {
	articles domain.ArticleRepository
	orders   domain.OrderRepository
	logger   *log.Entry
	metrics  *metrics.OrderMetrics
	tracer   trace.Tracer
}

// AssemblerOption настраивает Assembler.
type AssemblerOption func(*Assembler)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) AssemblerOption {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics включает запись метрик; без опции метрики не пишутся.
func WithMetrics(m *metrics.OrderMetrics) AssemblerOption {
	return func(a *Assembler) {
		a.metrics = m
	}
}

// WithTracer задаёт tracer; по умолчанию используется глобальный провайдер.
func WithTracer(tracer trace.Tracer) AssemblerOption {
	return func(a *Assembler) {
		if tracer != nil {
			a.tracer = tracer
		}
	}
}

// NewAssembler создаёт Assembler.
func NewAssembler(articles domain.ArticleRepository, orders domain.OrderRepository, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		articles: articles,
		orders:   orders,
		logger:   log.New().WithField("component", "order-assembler"),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble превращает запрос в сохранённый заказ.
// Отказы разбора и поиска возвращаются как *domain.AssemblyError до любого обращения к OrderRepository.
// Ошибки хранилища возвращаются без изменений.
func (a *Assembler) Assemble(ctx context.Context, req domain.OrderRequest) (Result, error) {
	started := time.Now()

	ctx, span := a.tracer.Start(ctx, "ordering.Assemble", trace.WithAttributes(
		attribute.Int("order.lines.requested", len(req.Lines)),
	))
	defer span.End()

	result, err := a.assemble(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.recordFailure(err, started)
		return Result{}, err
	}

	span.SetAttributes(
		attribute.Int64("order.id", result.Order.ID),
		attribute.Int("order.lines.persisted", len(result.Order.Lines)),
		attribute.Int("order.lines.dropped", len(result.Dropped)),
	)
	a.recordSuccess(result, started)

	return result, nil
}

func (a *Assembler) assemble(ctx context.Context, req domain.OrderRequest) (Result, error) {
	customerID, ok := reference.Resolve(req.CustomerRef)
	if !ok {
		return Result{}, &domain.AssemblyError{
			Err:       domain.ErrUnresolvableCustomer,
			Reference: reference.Tail(req.CustomerRef),
		}
	}

	lines := make([]ResolvedLine, 0, len(req.Lines))
	ids := make([]int64, 0, len(req.Lines))
	seen := make(map[int64]struct{}, len(req.Lines))
	firstRaw := ""

	for pos, lineReq := range req.Lines {
		id, resolved := reference.Resolve(lineReq.ArticleRef)
		lines = append(lines, ResolvedLine{Position: pos, ID: id, Resolved: resolved, Request: lineReq})

		if firstRaw == "" && lineReq.ArticleRef != "" {
			firstRaw = reference.Tail(lineReq.ArticleRef)
		}
		if !resolved {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return Result{}, &domain.AssemblyError{
			Err:       domain.ErrNoResolvableArticles,
			Reference: firstRaw,
		}
	}

	found, err := a.findArticles(ctx, ids)
	if err != nil {
		return Result{}, err
	}
	if len(found) == 0 {
		return Result{}, &domain.AssemblyError{
			Err:       domain.ErrNoArticlesFound,
			Reference: strconv.FormatInt(ids[0], 10),
		}
	}

	kept, dropped := Reconcile(lines, found)

	persisted, err := a.orders.Create(ctx, domain.Order{CustomerID: customerID, Lines: kept}, customerID)
	if err != nil {
		return Result{}, err
	}

	return Result{Order: persisted, Dropped: dropped}, nil
}

func (a *Assembler) findArticles(ctx context.Context, ids []int64) ([]domain.Article, error) {
	ctx, span := a.tracer.Start(ctx, "ordering.FindArticles", trace.WithAttributes(
		attribute.Int("articles.requested", len(ids)),
	))
	defer span.End()

	started := time.Now()
	found, err := a.articles.FindByIDs(ctx, ids)
	if a.metrics != nil {
		a.metrics.RecordLookupDuration(time.Since(started))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("articles.found", len(found)))
	return found, nil
}

func (a *Assembler) recordFailure(err error, started time.Time) {
	outcome := metrics.OutcomePersistenceError
	entry := a.logger.WithError(err)

	var assemblyErr *domain.AssemblyError
	if errors.As(err, &assemblyErr) {
		outcome = assemblyErr.Kind()
		entry.WithFields(log.Fields{
			"kind":      outcome,
			"reference": assemblyErr.Reference,
		}).Info("order assembly rejected")
	} else {
		entry.Error("order assembly failed")
	}

	if a.metrics != nil {
		a.metrics.RecordAssembly(outcome, time.Since(started))
	}
}

func (a *Assembler) recordSuccess(result Result, started time.Time) {
	entry := a.logger.WithFields(log.Fields{
		"order_id":    result.Order.ID,
		"customer_id": result.Order.CustomerID,
		"lines":       len(result.Order.Lines),
	})
	if len(result.Dropped) > 0 {
		entry.WithField("dropped", len(result.Dropped)).Warn("order created with dropped lines")
	} else {
		entry.Debug("order created")
	}

	if a.metrics == nil {
		return
	}
	a.metrics.RecordAssembly(metrics.OutcomeCreated, time.Since(started))
	a.metrics.RecordPersistedLines(len(result.Order.Lines))
	for reason, count := range countByReason(result.Dropped) {
		a.metrics.RecordDroppedLines(reason, count)
	}
}

func countByReason(dropped []DroppedLine) map[string]int {
	counts := make(map[string]int, 2)
	for _, line := range dropped {
		counts[line.Reason]++
	}
	return counts
}

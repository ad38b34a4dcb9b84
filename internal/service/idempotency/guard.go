package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

const (
	// DefaultTTL — время жизни ключа, после которого его удаляет CleanupWorker.
	DefaultTTL = 24 * time.Hour

	finishTimeout = 3 * time.Second
)

// Outcome — решение по запросу с Idempotency-Key.
type Outcome string

const (
	// OutcomeProceed: ключ новый, запрос нужно выполнить и затем вызвать Finish.
	OutcomeProceed Outcome = "proceed"
	// OutcomeReplay: ответ уже сохранён и возвращается без повторного выполнения.
	OutcomeReplay Outcome = "replay"
	// OutcomeInProgress: запрос с этим ключом ещё выполняется.
	OutcomeInProgress Outcome = "in_progress"
	// OutcomeMismatch: ключ уже использован с другим телом запроса.
	OutcomeMismatch Outcome = "mismatch"
)

// Decision описывает, что делать с запросом.
type Decision struct {
	Outcome Outcome
	Record  domain.IdempotencyRecord
}

// Guard закрепляет Idempotency-Key за первым запросом и воспроизводит его ответ для повторов.
type Guard struct {
	repo    domain.IdempotencyRepository
	ttl     time.Duration
	logger  *log.Entry
	metrics *metrics.IdempotencyMetrics
	now     func() time.Time
}

// NewGuard создаёт Guard. Неположительный ttl заменяется на DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry, m *metrics.IdempotencyMetrics) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	if m == nil {
		m = metrics.NewIdempotencyMetrics()
	}
	return &Guard{
		repo:    repo,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Begin пытается занять ключ за запросом с хэшем requestHash.
func (g *Guard) Begin(ctx context.Context, key, requestHash string) (Decision, error) {
	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	switch {
	case err == nil:
		return g.decide(OutcomeProceed, record), nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return g.decide(OutcomeMismatch, record), nil
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Finished() {
			return g.decide(OutcomeReplay, record), nil
		}
		return g.decide(OutcomeInProgress, record), nil
	default:
		return Decision{}, fmt.Errorf("begin idempotent request: %w", err)
	}
}

// Finish сохраняет ответ на запрос, занявший ключ. 2xx и 4xx воспроизводятся при повторах,
// после 5xx ключ освобождается и следующий повтор выполняется заново.
// Запись не зависит от отмены ctx: клиент мог уйти, но ключ не должен остаться в processing.
// Ошибка хранилища только логируется: ответ клиенту уже сформирован.
func (g *Guard) Finish(ctx context.Context, key string, resp domain.OrderResponse) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	logger := g.logger.WithFields(log.Fields{"idempotency_key": key, "http_status": resp.HTTPStatus})

	status, ok := domain.StatusForHTTP(resp.HTTPStatus)
	if !ok {
		if err := g.repo.Release(ctx, key); err != nil {
			logger.WithError(err).Warn("failed to release idempotency key")
			return
		}
		g.metrics.RecordDecision("released")
		return
	}
	if err := g.repo.Complete(ctx, key, status, resp); err != nil {
		logger.WithError(err).Warn("failed to store idempotent response")
	}
}

func (g *Guard) decide(outcome Outcome, record domain.IdempotencyRecord) Decision {
	g.metrics.RecordDecision(string(outcome))
	return Decision{Outcome: outcome, Record: record}
}

// RequestHash строит отпечаток запроса: метод, путь и тело.
// Prefer в отпечаток не входит: X-Dropped-Lines решается по повтору, а не по первому запросу.
func RequestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

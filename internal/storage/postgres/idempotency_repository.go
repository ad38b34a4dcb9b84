package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const idempotencyTable = "idempotency_keys"

var idempotencyColumns = []string{
	"key", "request_hash", "status",
	"http_status", "content_type", "location", "dropped_lines", "response_body",
	"ttl_at", "created_at", "updated_at",
}

var processingKey = sq.Eq{"status": string(domain.IdempotencyStatusProcessing)}

type idempotencyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.DB()}
}

// CreateProcessing занимает ключ. Занятый ключ возвращается вместе с ErrIdempotencyKeyAlreadyExists
// или ErrIdempotencyHashMismatch, чтобы вызывающий мог воспроизвести сохранённый ответ.
func (r *idempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}
	if ttlAt.IsZero() {
		ttlAt = time.Now().UTC().Add(24 * time.Hour)
	}

	query, args, err := psql.Insert(idempotencyTable).
		Columns("key", "request_hash", "status", "ttl_at").
		Values(key, requestHash, string(domain.IdempotencyStatusProcessing), ttlAt).
		Suffix("ON CONFLICT (key) DO NOTHING RETURNING " + strings.Join(idempotencyColumns, ", ")).
		ToSql()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("build idempotency insert: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := scanIdempotencyRecord(r.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, fmt.Errorf("claim idempotency key: %w", err)
	}

	existing, err := r.Get(ctx, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	query, args, err := psql.Select(idempotencyColumns...).
		From(idempotencyTable).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("build idempotency lookup: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := scanIdempotencyRecord(r.db.QueryRowContext(ctx, query, args...))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	case err != nil:
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency key %s: %w", key, err)
	}
	return record, nil
}

// Complete сохраняет ответ на создание заказа под ключом, который ещё в processing.
func (r *idempotencyRepository) Complete(ctx context.Context, key string, status domain.IdempotencyStatus, response domain.OrderResponse) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	if status == domain.IdempotencyStatusProcessing || !status.Valid() {
		return fmt.Errorf("idempotency key %s cannot be completed as %q", key, status)
	}

	query, args, err := psql.Update(idempotencyTable).
		SetMap(map[string]any{
			"status":        string(status),
			"http_status":   response.HTTPStatus,
			"content_type":  response.ContentType,
			"location":      response.Location,
			"dropped_lines": response.DroppedLines,
			"response_body": response.Body,
			"updated_at":    time.Now().UTC(),
		}).
		Where(sq.Eq{"key": key}).
		Where(processingKey).
		ToSql()
	if err != nil {
		return fmt.Errorf("build idempotency completion: %w", err)
	}
	return r.execOne(ctx, key, query, args)
}

// Release удаляет ключ в processing; завершённые ответы не трогает.
func (r *idempotencyRepository) Release(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	query, args, err := psql.Delete(idempotencyTable).
		Where(sq.Eq{"key": key}).
		Where(processingKey).
		ToSql()
	if err != nil {
		return fmt.Errorf("build idempotency release: %w", err)
	}
	return r.execOne(ctx, key, query, args)
}

// DeleteExpired удаляет до limit ключей с истёкшим ttl, начиная с самых старых; limit <= 0 снимает ограничение.
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	expired := psql.Select("key").
		From(idempotencyTable).
		Where(sq.LtOrEq{"ttl_at": before}).
		OrderBy("ttl_at ASC")
	if limit > 0 {
		expired = expired.Limit(uint64(limit))
	}
	subQuery, subArgs, err := expired.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build expired idempotency query: %w", err)
	}
	query, args, err := psql.Delete(idempotencyTable).
		Where("key IN ("+subQuery+")", subArgs...).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build idempotency cleanup: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idempotency rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *idempotencyRepository) execOne(ctx context.Context, key, query string, args []any) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update idempotency key %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func scanIdempotencyRecord(row rowScanner) (domain.IdempotencyRecord, error) {
	var (
		record     domain.IdempotencyRecord
		status     string
		httpStatus sql.NullInt64
	)
	resp := &record.Response
	if err := row.Scan(
		&record.Key, &record.RequestHash, &status,
		&httpStatus, &resp.ContentType, &resp.Location, &resp.DroppedLines, &resp.Body,
		&record.TTLAt, &record.CreatedAt, &record.UpdatedAt,
	); err != nil {
		return domain.IdempotencyRecord{}, err
	}

	record.Status = domain.IdempotencyStatus(status)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", status, record.Key)
	}
	resp.HTTPStatus = int(httpStatus.Int64)
	return record, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)

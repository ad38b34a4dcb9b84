package domain

import (
	"net/http"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing: запрос занял ключ и ещё выполняется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusCompleted: заказ создан, ответ 2xx воспроизводится при повторах.
	IdempotencyStatusCompleted IdempotencyStatus = "completed"
	// IdempotencyStatusRejected: заказ отклонён (4xx), отказ воспроизводится при повторах.
	IdempotencyStatusRejected IdempotencyStatus = "rejected"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusCompleted, IdempotencyStatusRejected:
		return true
	default:
		return false
	}
}

// StatusForHTTP выбирает итоговый статус ключа по коду ответа.
// Ответы 5xx не сохраняются: ok=false, ключ нужно освободить.
func StatusForHTTP(code int) (status IdempotencyStatus, ok bool) {
	switch {
	case code >= http.StatusInternalServerError || code < http.StatusOK:
		return "", false
	case code >= http.StatusBadRequest:
		return IdempotencyStatusRejected, true
	default:
		return IdempotencyStatusCompleted, true
	}
}

// OrderResponse — ответ на создание заказа, сохранённый под Idempotency-Key.
// DroppedLines хранится всегда: заголовок X-Dropped-Lines решается при воспроизведении.
type OrderResponse struct {
	HTTPStatus   int
	ContentType  string
	Location     string
	DroppedLines int
	Body         []byte
}

// IdempotencyRecord связывает ключ с отпечатком запроса и сохранённым ответом.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	Status      IdempotencyStatus
	Response    OrderResponse
	TTLAt       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Finished сообщает, что ответ сохранён и его можно воспроизвести.
func (r IdempotencyRecord) Finished() bool {
	return r.Status == IdempotencyStatusCompleted || r.Status == IdempotencyStatusRejected
}

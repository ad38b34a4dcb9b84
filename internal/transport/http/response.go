package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	codeInvalidPayload        = "invalid_payload"
	codeValidationFailed      = "validation_failed"
	codeNotFound              = "not_found"
	codeCustomerNotFound      = "customer.notFound.id"
	codeArticleNotFound       = "article.notFound.id"
	codeEmailExists           = "email_exists"
	codeArticleNameExists     = "article_name_exists"
	codeCustomerHasOrders     = "customer_has_orders"
	codeIdempotencyMismatch   = "idempotency_key_mismatch"
	codeIdempotencyInProgress = "idempotency_key_in_progress"
	codeInternal              = "internal"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Kind      string `json:"kind,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// response — сформированный, но ещё не записанный ответ.
// Нужен, чтобы тот же ответ можно было сохранить для Idempotency-Key.
type response struct {
	status int
	header http.Header
	body   []byte
}

func jsonResponse(status int, payload any) response {
	resp := response{status: status, header: http.Header{}}
	if payload == nil {
		return resp
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errorResult(http.StatusInternalServerError, codeInternal, "failed to encode response")
	}
	resp.header.Set("Content-Type", "application/json")
	resp.body = body
	return resp
}

func errorResult(status int, code, msg string) response {
	return jsonResponse(status, errorResponse{Error: msg, Code: code})
}

func (r response) write(w http.ResponseWriter) {
	for key, values := range r.header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(r.status)
	if len(r.body) > 0 {
		_, _ = w.Write(r.body)
	}
}

// domainErrorResult переводит ошибки домена в HTTP в одном месте.
func domainErrorResult(logger *log.Entry, r *http.Request, err error) response {
	var assemblyErr *domain.AssemblyError
	switch {
	case errors.As(err, &assemblyErr):
		code := codeArticleNotFound
		if errors.Is(err, domain.ErrUnresolvableCustomer) {
			code = codeCustomerNotFound
		}
		return jsonResponse(http.StatusNotFound, errorResponse{
			Error:     err.Error(),
			Code:      code,
			Kind:      assemblyErr.Kind(),
			Reference: assemblyErr.Reference,
		})
	case domain.IsValidation(err):
		return errorResult(http.StatusBadRequest, codeValidationFailed, err.Error())
	case errors.Is(err, domain.ErrEmailExists):
		return errorResult(http.StatusConflict, codeEmailExists, err.Error())
	case errors.Is(err, domain.ErrArticleNameExists):
		return errorResult(http.StatusConflict, codeArticleNameExists, err.Error())
	case errors.Is(err, domain.ErrCustomerHasOrders):
		return errorResult(http.StatusConflict, codeCustomerHasOrders, err.Error())
	case domain.IsNotFound(err):
		return errorResult(http.StatusNotFound, codeNotFound, err.Error())
	default:
		logger.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		return errorResult(http.StatusInternalServerError, codeInternal, "internal error")
	}
}

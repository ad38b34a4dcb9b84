package httptransport

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/reference"
	"github.com/vladislavdragonenkov/shop/internal/service/idempotency"
)

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		errorResult(http.StatusBadRequest, codeInvalidPayload, err.Error()).write(w)
		return
	}

	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" || h.guard == nil {
		resp, _ := h.placeOrder(r, body)
		resp.write(w)
		return
	}

	decision, err := h.guard.Begin(r.Context(), key, idempotency.RequestHash(r.Method, r.URL.Path, body))
	if err != nil {
		domainErrorResult(h.logger, r, err).write(w)
		return
	}

	switch decision.Outcome {
	case idempotency.OutcomeMismatch:
		errorResult(http.StatusUnprocessableEntity, codeIdempotencyMismatch,
			"idempotency key is already used with a different request").write(w)
	case idempotency.OutcomeInProgress:
		errorResult(http.StatusConflict, codeIdempotencyInProgress,
			"request with the same idempotency key is still in progress").write(w)
	case idempotency.OutcomeReplay:
		h.replay(r, decision.Record).write(w)
	default:
		resp, dropped := h.placeOrder(r, body)
		h.guard.Finish(r.Context(), key, domain.OrderResponse{
			HTTPStatus:   resp.status,
			ContentType:  resp.header.Get("Content-Type"),
			Location:     resp.header.Get("Location"),
			DroppedLines: dropped,
			Body:         resp.body,
		})
		resp.write(w)
	}
}

// placeOrder создаёт заказ и возвращает ответ вместе с числом отброшенных строк.
func (h *handler) placeOrder(r *http.Request, body []byte) (response, int) {
	var req createOrderRequest
	if err := decodeJSON(body, &req); err != nil {
		return errorResult(http.StatusBadRequest, codeInvalidPayload, err.Error()), 0
	}
	orderReq, err := req.toDomain()
	if err != nil {
		return errorResult(http.StatusBadRequest, codeInvalidPayload, err.Error()), 0
	}

	result, err := h.orders.Create(r.Context(), orderReq)
	if err != nil {
		return domainErrorResult(h.logger, r, err), 0
	}

	resp := jsonResponse(http.StatusCreated, newOrderResponse(h.mapper, result.Order))
	resp.header.Set("Location", h.projector.OrderURI(result.Order.ID))
	if wantsDiagnostics(r) {
		resp.header.Set(headerDroppedLines, strconv.Itoa(len(result.Dropped)))
	}
	return resp, len(result.Dropped)
}

// replay отдаёт сохранённый ответ. X-Dropped-Lines зависит от Prefer текущего запроса.
func (h *handler) replay(r *http.Request, record domain.IdempotencyRecord) response {
	saved := record.Response
	if saved.HTTPStatus == 0 {
		h.logger.WithField("idempotency_key", record.Key).Warn("idempotent record has no stored response")
		return errorResult(http.StatusInternalServerError, codeInternal, "failed to replay idempotent response")
	}

	resp := response{status: saved.HTTPStatus, header: http.Header{}, body: saved.Body}
	if saved.ContentType != "" {
		resp.header.Set("Content-Type", saved.ContentType)
	}
	if saved.Location != "" {
		resp.header.Set("Location", saved.Location)
	}
	if saved.HTTPStatus == http.StatusCreated && wantsDiagnostics(r) {
		resp.header.Set(headerDroppedLines, strconv.Itoa(saved.DroppedLines))
	}
	resp.header.Set(headerIdempotentReplay, "true")
	return resp
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFoundResult().write(w)
		return
	}

	order, err := h.orders.Get(r.Context(), id)
	if err != nil {
		domainErrorResult(h.logger, r, err).write(w)
		return
	}

	resp := jsonResponse(http.StatusOK, newOrderResponse(h.mapper, order))
	addLinkHeaders(resp.header, h.projector.Project(order))
	resp.write(w)
}

func (h *handler) getOrderCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFoundResult().write(w)
		return
	}

	customer, err := h.orders.CustomerOf(r.Context(), id)
	if err != nil {
		domainErrorResult(h.logger, r, err).write(w)
		return
	}

	resp := jsonResponse(http.StatusOK, newCustomerResponse(customer))
	addLinkHeaders(resp.header, []domain.Link{{Rel: domain.LinkSelf, Target: h.mapper.Project(reference.KindCustomer, customer.ID)}})
	resp.write(w)
}

func (h *handler) getOrderTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFoundResult().write(w)
		return
	}

	events, err := h.orders.Timeline(r.Context(), id)
	if err != nil {
		domainErrorResult(h.logger, r, err).write(w)
		return
	}
	jsonResponse(http.StatusOK, newTimelineResponse(events)).write(w)
}

func (h *handler) listCustomerOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFoundResult().write(w)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		errorResult(http.StatusBadRequest, codeInvalidPayload, "limit must be a non-negative integer").write(w)
		return
	}

	orders, err := h.orders.ListByCustomer(r.Context(), id, int(limit))
	if err != nil {
		domainErrorResult(h.logger, r, err).write(w)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, newOrderResponse(h.mapper, order))
	}
	jsonResponse(http.StatusOK, out).write(w)
}

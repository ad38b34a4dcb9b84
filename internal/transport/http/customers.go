package httptransport

import (
	"net/http"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/reference"
)

func (h *handler) customerLinks(id int64) []domain.Link {
	return []domain.Link{
		{Rel: domain.LinkSelf, Target: h.mapper.Project(reference.KindCustomer, id)},
		{Rel: domain.LinkAdd, Target: h.mapper.Collection(reference.KindCustomer)},
	}
}

func (h *handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := decodeBody(w, r, &req); err != nil {
		errorResult(http.StatusBadRequest, codeInvalidPayload, err.Error()).write(w)
		return
	}

	customer, err := h.customers.Create(r.Context(), req.toDomain())
	if err != nil {
		domainErrorResult(h.logger, r, err).write(w)
		return
	}

	resp := jsonResponse(http.StatusCreated, newCustomerResponse(customer))
	resp.header.Set("Location", h.mapper.Project(reference.KindCustomer, customer.ID))
	resp.write(w)
}

func (h *handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFoundResult().write(w)
		return
	}

	customer, err := h.customers.Get(r.Context(), id)
	if err != nil {
		domainErrorResult(h.logger, r, err).write(w)
		return
	}

	resp := jsonResponse(http.StatusOK, newCustomerResponse(customer))
	addLinkHeaders(resp.header, h.customerLinks(customer.ID))
	resp.write(w)
}

func (h *handler) searchCustomers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	found, err := h.customers.Search(r.Context(), query.Get("email"), query.Get("lastName"))
	if err != nil {
		domainErrorResult(h.logger, r, err).write(w)
		return
	}

	out := make([]customerResponse, 0, len(found))
	for _, c := range found {
		out = append(out, newCustomerResponse(c))
	}
	jsonResponse(http.StatusOK, out).write(w)
}

func (h *handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFoundResult().write(w)
		return
	}
	var req customerRequest
	if err := decodeBody(w, r, &req); err != nil {
		errorResult(http.StatusBadRequest, codeInvalidPayload, err.Error()).write(w)
		return
	}

	customer, err := h.customers.Update(r.Context(), id, req.toDomain())
	if err != nil {
		domainErrorResult(h.logger, r, err).write(w)
		return
	}

	resp := jsonResponse(http.StatusOK, newCustomerResponse(customer))
	addLinkHeaders(resp.header, h.customerLinks(customer.ID))
	resp.write(w)
}

func (h *handler) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFoundResult().write(w)
		return
	}

	if err := h.customers.Delete(r.Context(), id); err != nil {
		domainErrorResult(h.logger, r, err).write(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

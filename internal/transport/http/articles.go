package httptransport

import (
	"net/http"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/reference"
)

func (h *handler) articleLinks(id int64) []domain.Link {
	return []domain.Link{{Rel: domain.LinkSelf, Target: h.mapper.Project(reference.KindArticle, id)}}
}

func (h *handler) createArticle(w http.ResponseWriter, r *http.Request) {
	var req articleRequest
	if err := decodeBody(w, r, &req); err != nil {
		errorResult(http.StatusBadRequest, codeInvalidPayload, err.Error()).write(w)
		return
	}

	article, err := h.catalog.Create(r.Context(), req.toDomain())
	if err != nil {
		domainErrorResult(h.logger, r, err).write(w)
		return
	}

	resp := jsonResponse(http.StatusCreated, newArticleResponse(article))
	resp.header.Set("Location", h.mapper.Project(reference.KindArticle, article.ID))
	resp.write(w)
}

func (h *handler) getArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFoundResult().write(w)
		return
	}

	article, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		domainErrorResult(h.logger, r, err).write(w)
		return
	}

	resp := jsonResponse(http.StatusOK, newArticleResponse(article))
	addLinkHeaders(resp.header, h.articleLinks(article.ID))
	resp.write(w)
}

func (h *handler) updateArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFoundResult().write(w)
		return
	}
	var req articleRequest
	if err := decodeBody(w, r, &req); err != nil {
		errorResult(http.StatusBadRequest, codeInvalidPayload, err.Error()).write(w)
		return
	}

	article, err := h.catalog.Update(r.Context(), id, req.toDomain())
	if err != nil {
		domainErrorResult(h.logger, r, err).write(w)
		return
	}

	resp := jsonResponse(http.StatusOK, newArticleResponse(article))
	addLinkHeaders(resp.header, h.articleLinks(article.ID))
	resp.write(w)
}

func (h *handler) slowMovers(w http.ResponseWriter, r *http.Request) {
	maxOrdered, err := queryInt(r, "max", 0)
	if err != nil {
		errorResult(http.StatusBadRequest, codeInvalidPayload, err.Error()).write(w)
		return
	}

	usage, err := h.catalog.SlowMovers(r.Context(), maxOrdered)
	if err != nil {
		domainErrorResult(h.logger, r, err).write(w)
		return
	}

	out := make([]slowMoverResponse, 0, len(usage))
	for _, u := range usage {
		out = append(out, slowMoverResponse{Article: newArticleResponse(u.Article), OrderedAmount: u.OrderedAmount})
	}
	jsonResponse(http.StatusOK, out).write(w)
}

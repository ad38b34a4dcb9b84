package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/reference"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/customers"
	"github.com/vladislavdragonenkov/shop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shop/internal/service/ordering"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

const testBaseURL = "http://shop.example"

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	return logger.WithField("component", "test")
}

type testAPI struct {
	handler http.Handler
	store   *memory.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := loggerForTests()
	reg := prometheus.NewRegistry()
	store := memory.NewStore()
	mapper, err := reference.NewMapper(testBaseURL)
	require.NoError(t, err)

	assembler := ordering.NewAssembler(store.Articles(), store.Orders(),
		ordering.WithLogger(logger),
		ordering.WithMetrics(metrics.NewOrderMetricsWithRegisterer(reg)),
	)
	orders := ordering.NewService(assembler, store.Orders(), store.Customers(),
		memory.NewTimelineRepository(), memory.NewOutboxRepository(), logger)

	handler := NewRouter(Services{
		Orders:    orders,
		Projector: ordering.NewProjector(mapper),
		Catalog:   catalog.NewService(store.Articles(), logger),
		Customers: customers.NewService(store.Customers(), logger),
		Mapper:    mapper,
		Guard: idempotency.NewGuard(memory.NewIdempotencyRepository(), 0, logger,
			metrics.NewIdempotencyMetricsWithRegisterer(reg)),
	}, Options{
		Logger:  logger,
		Metrics: metrics.NewHTTPMetricsWithRegisterer(reg),
	})

	return &testAPI{handler: handler, store: store}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// seed создаёт клиента и артикулы через API и возвращает их идентификаторы.
func (a *testAPI) seed(t *testing.T, articles ...string) (int64, []int64) {
	t.Helper()

	rec := a.do(t, http.MethodPost, "/customers", map[string]any{
		"lastName":  "Alpha",
		"firstName": "Anna",
		"email":     "alpha@example.com",
		"address": map[string]string{
			"postalCode": "76133", "city": "Karlsruhe", "street": "Moltkestrasse", "houseNumber": "30",
		},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	customer := decodeResponse[customerResponse](t, rec)

	ids := make([]int64, 0, len(articles))
	for _, name := range articles {
		rec := a.do(t, http.MethodPost, "/articles", map[string]any{"name": name, "price": "9.99", "available": true}, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		ids = append(ids, decodeResponse[articleResponse](t, rec).ID)
	}
	return customer.ID, ids
}

func customerURI(id int64) string { return fmt.Sprintf("%s/customers/%d", testBaseURL, id) }
func articleURI(id int64) string  { return fmt.Sprintf("%s/articles/%d", testBaseURL, id) }

func TestCreateOrder_AllLinesResolved(t *testing.T) {
	api := newTestAPI(t)
	customerID, articleIDs := api.seed(t, "Hammer", "Nails")

	rec := api.do(t, http.MethodPost, "/orders", map[string]any{
		"customerUri": customerURI(customerID),
		"lines": []map[string]any{
			{"articleUri": articleURI(articleIDs[0]), "quantity": 2},
			{"articleUri": articleURI(articleIDs[1])},
		},
	}, nil)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decodeResponse[orderResponse](t, rec)
	assert.Equal(t, fmt.Sprintf("%s/orders/%d", testBaseURL, order.ID), rec.Header().Get("Location"))
	assert.Equal(t, customerURI(customerID), order.CustomerURI)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, articleURI(articleIDs[0]), order.Lines[0].ArticleURI)
	assert.Equal(t, int32(2), order.Lines[0].Quantity)
	assert.Equal(t, int32(1), order.Lines[1].Quantity, "missing quantity defaults to one")
	assert.Empty(t, rec.Header().Get(headerDroppedLines), "diagnostics are opt-in")
}

func TestCreateOrder_PartialLineLossIsSilentByDefault(t *testing.T) {
	api := newTestAPI(t)
	customerID, articleIDs := api.seed(t, "Hammer")

	body := map[string]any{
		"customerUri": customerURI(customerID),
		"lines": []map[string]any{
			{"articleUri": articleURI(articleIDs[0]), "quantity": 1},
			{"articleUri": articleURI(999), "quantity": 1},
			{"articleUri": testBaseURL + "/articles/abc", "quantity": 1},
		},
	}

	rec := api.do(t, http.MethodPost, "/orders", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decodeResponse[orderResponse](t, rec)
	require.Len(t, order.Lines, 1)
	assert.Empty(t, rec.Header().Get(headerDroppedLines))

	rec = api.do(t, http.MethodPost, "/orders", body, map[string]string{headerPrefer: "respond-async, return-diagnostics"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "2", rec.Header().Get(headerDroppedLines))

	timeline := api.do(t, http.MethodGet, fmt.Sprintf("/orders/%d/timeline", order.ID), nil, nil)
	require.Equal(t, http.StatusOK, timeline.Code)
	events := decodeResponse[[]timelineEventResponse](t, timeline)
	require.Len(t, events, 2)
	assert.Equal(t, "order.created", events[0].Type)
	assert.Equal(t, "order.lines_dropped", events[1].Type)
	assert.Equal(t, 2, events[1].DroppedCount)
}

func TestCreateOrder_AssemblyFailures(t *testing.T) {
	api := newTestAPI(t)
	customerID, _ := api.seed(t)

	cases := []struct {
		name      string
		body      map[string]any
		code      string
		kind      string
		reference string
	}{
		{
			name: "unresolvable customer",
			body: map[string]any{
				"customerUri": testBaseURL + "/customers/xyz",
				"lines":       []map[string]any{{"articleUri": articleURI(1)}},
			},
			code: codeCustomerNotFound, kind: "UnresolvableCustomer", reference: "xyz",
		},
		{
			name: "no resolvable articles",
			body: map[string]any{
				"customerUri": customerURI(customerID),
				"lines":       []map[string]any{{"articleUri": ""}, {"articleUri": testBaseURL + "/articles/foo"}},
			},
			code: codeArticleNotFound, kind: "NoResolvableArticles", reference: "foo",
		},
		{
			name: "no articles found",
			body: map[string]any{
				"customerUri": customerURI(customerID),
				"lines":       []map[string]any{{"articleUri": articleURI(555)}, {"articleUri": articleURI(556)}},
			},
			code: codeArticleNotFound, kind: "NoArticlesFound", reference: "555",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/orders", tc.body, nil)
			require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

			body := decodeResponse[errorResponse](t, rec)
			assert.Equal(t, tc.code, body.Code)
			assert.Equal(t, tc.kind, body.Kind)
			assert.Equal(t, tc.reference, body.Reference)
		})
	}
}

func TestCreateOrder_UnknownCustomerIdIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	_, articleIDs := api.seed(t, "Hammer")

	rec := api.do(t, http.MethodPost, "/orders", map[string]any{
		"customerUri": customerURI(4242),
		"lines":       []map[string]any{{"articleUri": articleURI(articleIDs[0])}},
	}, nil)

	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	assert.Equal(t, codeNotFound, decodeResponse[errorResponse](t, rec).Code)
}

func TestCreateOrder_InvalidPayload(t *testing.T) {
	api := newTestAPI(t)
	customerID, articleIDs := api.seed(t, "Hammer")

	rec := api.do(t, http.MethodPost, "/orders", "{not json", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidPayload, decodeResponse[errorResponse](t, rec).Code)

	rec = api.do(t, http.MethodPost, "/orders", map[string]any{
		"customerUri": customerURI(customerID),
		"lines":       []map[string]any{{"articleUri": articleURI(articleIDs[0]), "quantity": -1}},
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/orders", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrder_Idempotency(t *testing.T) {
	api := newTestAPI(t)
	customerID, articleIDs := api.seed(t, "Hammer")
	body := map[string]any{
		"customerUri": customerURI(customerID),
		"lines":       []map[string]any{{"articleUri": articleURI(articleIDs[0]), "quantity": 3}},
	}
	headers := map[string]string{headerIdempotencyKey: "order-key-1"}

	first := api.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := api.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	assert.Equal(t, first.Header().Get("Location"), second.Header().Get("Location"))
	assert.Equal(t, "true", second.Header().Get(headerIdempotentReplay))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	body["lines"] = []map[string]any{{"articleUri": articleURI(articleIDs[0]), "quantity": 4}}
	mismatch := api.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusUnprocessableEntity, mismatch.Code)
	assert.Equal(t, codeIdempotencyMismatch, decodeResponse[errorResponse](t, mismatch).Code)

	list := api.do(t, http.MethodGet, fmt.Sprintf("/customers/%d/orders", customerID), nil, nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decodeResponse[[]orderResponse](t, list), 1)
}

func TestCreateOrder_IdempotentReplayResolvesDiagnosticsPerRequest(t *testing.T) {
	api := newTestAPI(t)
	customerID, articleIDs := api.seed(t, "Hammer")
	body := map[string]any{
		"customerUri": customerURI(customerID),
		"lines": []map[string]any{
			{"articleUri": articleURI(articleIDs[0]), "quantity": 1},
			{"articleUri": articleURI(999), "quantity": 1},
		},
	}

	first := api.do(t, http.MethodPost, "/orders", body, map[string]string{headerIdempotencyKey: "order-key-diag"})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Empty(t, first.Header().Get(headerDroppedLines))

	replayed := api.do(t, http.MethodPost, "/orders", body, map[string]string{
		headerIdempotencyKey: "order-key-diag",
		headerPrefer:         "return-diagnostics",
	})
	require.Equal(t, http.StatusCreated, replayed.Code, replayed.Body.String())
	assert.Equal(t, "true", replayed.Header().Get(headerIdempotentReplay))
	assert.Equal(t, "1", replayed.Header().Get(headerDroppedLines))
	assert.Equal(t, first.Header().Get("Content-Type"), replayed.Header().Get("Content-Type"))
	assert.Equal(t, first.Header().Get("Location"), replayed.Header().Get("Location"))

	plain := api.do(t, http.MethodPost, "/orders", body, map[string]string{headerIdempotencyKey: "order-key-diag"})
	require.Equal(t, http.StatusCreated, plain.Code)
	assert.Empty(t, plain.Header().Get(headerDroppedLines))
}

func TestCreateOrder_IdempotentRejectionIsReplayed(t *testing.T) {
	api := newTestAPI(t)
	_, articleIDs := api.seed(t, "Hammer")
	body := map[string]any{
		"customerUri": customerURI(4242),
		"lines":       []map[string]any{{"articleUri": articleURI(articleIDs[0])}},
	}
	headers := map[string]string{headerIdempotencyKey: "order-key-rejected", headerPrefer: "return-diagnostics"}

	first := api.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusNotFound, first.Code, first.Body.String())

	second := api.do(t, http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusNotFound, second.Code)
	assert.Equal(t, "true", second.Header().Get(headerIdempotentReplay))
	assert.Empty(t, second.Header().Get(headerDroppedLines), "rejections carry no diagnostics")
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestGetOrder_LinkHeaders(t *testing.T) {
	api := newTestAPI(t)
	customerID, articleIDs := api.seed(t, "Hammer", "Nails")

	created := api.do(t, http.MethodPost, "/orders", map[string]any{
		"customerUri": customerURI(customerID),
		"lines": []map[string]any{
			{"articleUri": articleURI(articleIDs[1])},
			{"articleUri": articleURI(articleIDs[0])},
			{"articleUri": articleURI(articleIDs[1])},
		},
	}, nil)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	order := decodeResponse[orderResponse](t, created)

	rec := api.do(t, http.MethodGet, fmt.Sprintf("/orders/%d", order.ID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{
		fmt.Sprintf(`<%s/orders/%d>; rel="self"`, testBaseURL, order.ID),
		fmt.Sprintf(`<%s/orders>; rel="add"`, testBaseURL),
		fmt.Sprintf(`<%s>; rel="customer"`, customerURI(customerID)),
		fmt.Sprintf(`<%s>; rel="article"`, articleURI(articleIDs[1])),
		fmt.Sprintf(`<%s>; rel="article"`, articleURI(articleIDs[0])),
		fmt.Sprintf(`<%s>; rel="article"`, articleURI(articleIDs[1])),
	}, rec.Header().Values("Link"))

	customer := api.do(t, http.MethodGet, fmt.Sprintf("/orders/%d/customer", order.ID), nil, nil)
	require.Equal(t, http.StatusOK, customer.Code)
	assert.Equal(t, customerID, decodeResponse[customerResponse](t, customer).ID)
}

func TestRouter_InvalidIDsAreNotFound(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/orders/abc", "/orders/0", "/orders/007", "/articles/-1", "/customers/99999999999999999999", "/orders/1"} {
		rec := api.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestArticles_CreateUpdateConflictAndSlowMovers(t *testing.T) {
	api := newTestAPI(t)
	customerID, articleIDs := api.seed(t, "Hammer", "Nails")

	dup := api.do(t, http.MethodPost, "/articles", map[string]any{"name": "Hammer", "price": "1.00"}, nil)
	require.Equal(t, http.StatusConflict, dup.Code)
	assert.Equal(t, codeArticleNameExists, decodeResponse[errorResponse](t, dup).Code)

	invalid := api.do(t, http.MethodPost, "/articles", map[string]any{"name": "X", "price": "-1"}, nil)
	require.Equal(t, http.StatusBadRequest, invalid.Code)
	assert.Equal(t, codeValidationFailed, decodeResponse[errorResponse](t, invalid).Code)

	updated := api.do(t, http.MethodPut, fmt.Sprintf("/articles/%d", articleIDs[0]),
		map[string]any{"name": "Sledgehammer", "price": "24.50", "available": true}, nil)
	require.Equal(t, http.StatusOK, updated.Code, updated.Body.String())
	assert.Equal(t, "Sledgehammer", decodeResponse[articleResponse](t, updated).Name)
	assert.Equal(t, []string{fmt.Sprintf(`<%s>; rel="self"`, articleURI(articleIDs[0]))}, updated.Header().Values("Link"))

	missing := api.do(t, http.MethodPut, "/articles/999", map[string]any{"name": "Ghost", "price": "1"}, nil)
	require.Equal(t, http.StatusNotFound, missing.Code)

	order := api.do(t, http.MethodPost, "/orders", map[string]any{
		"customerUri": customerURI(customerID),
		"lines":       []map[string]any{{"articleUri": articleURI(articleIDs[0]), "quantity": 5}},
	}, nil)
	require.Equal(t, http.StatusCreated, order.Code)

	slow := api.do(t, http.MethodGet, "/articles/slow-movers?max=1", nil, nil)
	require.Equal(t, http.StatusOK, slow.Code)
	usage := decodeResponse[[]slowMoverResponse](t, slow)
	require.Len(t, usage, 1)
	assert.Equal(t, articleIDs[1], usage[0].Article.ID)

	bad := api.do(t, http.MethodGet, "/articles/slow-movers?max=many", nil, nil)
	require.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestCustomers_Lifecycle(t *testing.T) {
	api := newTestAPI(t)
	customerID, articleIDs := api.seed(t, "Hammer")

	dup := api.do(t, http.MethodPost, "/customers", map[string]any{
		"lastName": "Beta", "email": "ALPHA@example.com",
		"address": map[string]string{"postalCode": "10115", "city": "Berlin", "street": "Unter", "houseNumber": "1"},
	}, nil)
	require.Equal(t, http.StatusConflict, dup.Code)
	assert.Equal(t, codeEmailExists, decodeResponse[errorResponse](t, dup).Code)

	search := api.do(t, http.MethodGet, "/customers?lastName=alpha", nil, nil)
	require.Equal(t, http.StatusOK, search.Code)
	assert.Len(t, decodeResponse[[]customerResponse](t, search), 1)

	noCriteria := api.do(t, http.MethodGet, "/customers", nil, nil)
	require.Equal(t, http.StatusBadRequest, noCriteria.Code)

	order := api.do(t, http.MethodPost, "/orders", map[string]any{
		"customerUri": customerURI(customerID),
		"lines":       []map[string]any{{"articleUri": articleURI(articleIDs[0])}},
	}, nil)
	require.Equal(t, http.StatusCreated, order.Code)

	refused := api.do(t, http.MethodDelete, fmt.Sprintf("/customers/%d", customerID), nil, nil)
	require.Equal(t, http.StatusConflict, refused.Code)
	assert.Equal(t, codeCustomerHasOrders, decodeResponse[errorResponse](t, refused).Code)

	other := api.do(t, http.MethodPost, "/customers", map[string]any{
		"lastName": "Gamma", "email": "gamma@example.com",
		"address": map[string]string{"postalCode": "10115", "city": "Berlin", "street": "Unter", "houseNumber": "1"},
	}, nil)
	require.Equal(t, http.StatusCreated, other.Code, other.Body.String())
	otherID := decodeResponse[customerResponse](t, other).ID

	updated := api.do(t, http.MethodPut, fmt.Sprintf("/customers/%d", otherID), map[string]any{
		"lastName": "Gamma", "email": "alpha@example.com",
		"address": map[string]string{"postalCode": "10115", "city": "Berlin", "street": "Unter", "houseNumber": "1"},
	}, nil)
	require.Equal(t, http.StatusConflict, updated.Code)

	deleted := api.do(t, http.MethodDelete, fmt.Sprintf("/customers/%d", otherID), nil, nil)
	require.Equal(t, http.StatusNoContent, deleted.Code)

	gone := api.do(t, http.MethodGet, fmt.Sprintf("/customers/%d", otherID), nil, nil)
	require.Equal(t, http.StatusNotFound, gone.Code)
}

func TestWantsDiagnostics(t *testing.T) {
	cases := map[string]bool{
		"":                                  false,
		"return=minimal":                    false,
		"return-diagnostics":                true,
		"Return-Diagnostics; strict":        true,
		"respond-async, return-diagnostics": true,
	}
	for value, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/orders", nil)
		if value != "" {
			req.Header.Set(headerPrefer, value)
		}
		assert.Equal(t, want, wantsDiagnostics(req), value)
	}
}

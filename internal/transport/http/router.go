// Package httptransport — REST API магазина поверх chi.
package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/reference"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/customers"
	"github.com/vladislavdragonenkov/shop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shop/internal/service/ordering"
)

const (
	idPattern          = "{id:[1-9][0-9]*}"
	maxRequestBodySize = 1 << 20
	defaultTimeout     = 30 * time.Second
)

// Services — прикладные сервисы, которые обслуживает API.
type Services struct {
	Orders    *ordering.Service
	Projector *ordering.Projector
	Catalog   *catalog.Service
	Customers *customers.Service
	Mapper    *reference.Mapper
	// Guard включает поддержку Idempotency-Key для POST /orders. nil отключает её.
	Guard *idempotency.Guard
}

// Options задаёт сквозные настройки роутера.
type Options struct {
	Logger         *log.Entry
	Metrics        *metrics.HTTPMetrics
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type handler struct {
	orders    *ordering.Service
	projector *ordering.Projector
	catalog   *catalog.Service
	customers *customers.Service
	mapper    *reference.Mapper
	guard     *idempotency.Guard
	logger    *log.Entry
}

// NewRouter собирает маршруты и middleware API.
func NewRouter(svc Services, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	httpMetrics := opts.Metrics
	if httpMetrics == nil {
		httpMetrics = metrics.NewHTTPMetrics()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := &handler{
		orders:    svc.Orders,
		projector: svc.Projector,
		catalog:   svc.Catalog,
		customers: svc.Customers,
		mapper:    svc.Mapper,
		guard:     svc.Guard,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger, httpMetrics))
	r.Use(middleware.Recoverer)
	r.Use(otelhttp.NewMiddleware("shop-http"))
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", headerIdempotencyKey, headerPrefer},
		ExposedHeaders: []string{"Location", "Link", headerDroppedLines, headerIdempotentReplay},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		errorResult(http.StatusNotFound, codeNotFound, "resource not found").write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		errorResult(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed").write(w)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Route("/"+idPattern, func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Get("/customer", h.getOrderCustomer)
			r.Get("/timeline", h.getOrderTimeline)
		})
	})

	r.Route("/articles", func(r chi.Router) {
		r.Post("/", h.createArticle)
		r.Get("/slow-movers", h.slowMovers)
		r.Get("/"+idPattern, h.getArticle)
		r.Put("/"+idPattern, h.updateArticle)
	})

	r.Route("/customers", func(r chi.Router) {
		r.Post("/", h.createCustomer)
		r.Get("/", h.searchCustomers)
		r.Route("/"+idPattern, func(r chi.Router) {
			r.Get("/", h.getCustomer)
			r.Put("/", h.updateCustomer)
			r.Delete("/", h.deleteCustomer)
			r.Get("/orders", h.listCustomerOrders)
		})
	})

	return r
}

// requestLogger пишет итог запроса в logrus и метрики по шаблону маршрута.
func requestLogger(logger *log.Entry, httpMetrics *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			duration := time.Since(start)
			httpMetrics.ObserveRequest(r.Method, route, status, duration)

			entry := logger.WithFields(log.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     status,
				"bytes":      ww.BytesWritten(),
				"duration":   duration.String(),
				"request_id": middleware.GetReqID(r.Context()),
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("request completed")
				return
			}
			entry.Debug("request completed")
		})
	}
}

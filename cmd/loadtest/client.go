package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerPrefer         = "Prefer"
	headerDroppedLines   = "X-Dropped-Lines"
)

// shopClient — HTTP-клиент API магазина поверх resty.
type shopClient struct {
	http    *resty.Client
	baseURL string
}

func newShopClient(baseURL string, timeout time.Duration) *shopClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &shopClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		baseURL: baseURL,
	}
}

type addressBody struct {
	PostalCode  string `json:"postalCode"`
	City        string `json:"city"`
	Street      string `json:"street"`
	HouseNumber string `json:"houseNumber"`
}

type customerBody struct {
	LastName  string      `json:"lastName"`
	FirstName string      `json:"firstName"`
	Email     string      `json:"email"`
	Address   addressBody `json:"address"`
}

type articleBody struct {
	Name      string `json:"name"`
	Price     string `json:"price"`
	Available bool   `json:"available"`
}

type orderLineBody struct {
	ArticleURI string `json:"articleUri"`
	Quantity   int32  `json:"quantity"`
}

type orderBody struct {
	CustomerURI string          `json:"customerUri"`
	Lines       []orderLineBody `json:"lines"`
}

// orderOutcome — результат одного POST /orders.
type orderOutcome struct {
	status  int
	dropped int
}

func (c *shopClient) createCustomer(ctx context.Context, runID string) (string, error) {
	return c.create(ctx, "/customers", customerBody{
		LastName:  "Loadtest",
		FirstName: "Run",
		Email:     fmt.Sprintf("load-%s@example.com", runID),
		Address: addressBody{
			PostalCode:  "10115",
			City:        "Berlin",
			Street:      "Invalidenstr",
			HouseNumber: "117",
		},
	})
}

func (c *shopClient) createArticle(ctx context.Context, name string) (string, error) {
	return c.create(ctx, "/articles", articleBody{Name: name, Price: "9.99", Available: true})
}

// create отправляет POST и возвращает Location созданного ресурса.
func (c *shopClient) create(ctx context.Context, path string, body any) (string, error) {
	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(path)
	if err != nil {
		return "", fmt.Errorf("POST %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusCreated {
		return "", fmt.Errorf("POST %s: unexpected status %d: %s", path, resp.StatusCode(), resp.String())
	}
	location := resp.Header().Get("Location")
	if location == "" {
		return "", fmt.Errorf("POST %s: response has no Location header", path)
	}
	return location, nil
}

func (c *shopClient) createOrder(ctx context.Context, order orderBody, idempotencyKey string) (orderOutcome, error) {
	req := c.http.R().
		SetContext(ctx).
		SetBody(order).
		SetHeader(headerPrefer, "return-diagnostics")
	if idempotencyKey != "" {
		req.SetHeader(headerIdempotencyKey, idempotencyKey)
	}

	resp, err := req.Post("/orders")
	if err != nil {
		return orderOutcome{}, err
	}

	outcome := orderOutcome{status: resp.StatusCode()}
	if raw := resp.Header().Get(headerDroppedLines); raw != "" {
		dropped, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return outcome, fmt.Errorf("invalid %s header %q", headerDroppedLines, raw)
		}
		outcome.dropped = dropped
	}
	return outcome, nil
}

// unresolvableArticleURI строит ссылку с нечисловым хвостом: сервис отбросит такую позицию.
func (c *shopClient) unresolvableArticleURI(index int) string {
	return fmt.Sprintf("%s/articles/unknown-%d", c.baseURL, index)
}

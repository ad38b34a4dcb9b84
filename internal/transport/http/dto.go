package httptransport

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/reference"
)

const defaultLineQuantity = 1

type orderLineRequest struct {
	ArticleURI string `json:"articleUri"`
	Quantity   int32  `json:"quantity"`
}

type createOrderRequest struct {
	CustomerURI string             `json:"customerUri"`
	Lines       []orderLineRequest `json:"lines"`
}

// toDomain переносит ссылки как есть: их разбор и проверка выполняются при сборке заказа.
// Нулевое количество означает одну единицу.
func (r createOrderRequest) toDomain() (domain.OrderRequest, error) {
	req := domain.OrderRequest{
		CustomerRef: strings.TrimSpace(r.CustomerURI),
		Lines:       make([]domain.OrderLineRequest, 0, len(r.Lines)),
	}
	for i, line := range r.Lines {
		qty := line.Quantity
		switch {
		case qty < 0:
			return domain.OrderRequest{}, fmt.Errorf("line %d: quantity must not be negative", i)
		case qty == 0:
			qty = defaultLineQuantity
		}
		req.Lines = append(req.Lines, domain.OrderLineRequest{
			ArticleRef: strings.TrimSpace(line.ArticleURI),
			Quantity:   qty,
		})
	}
	return req, nil
}

type orderLineResponse struct {
	ID         int64  `json:"id"`
	ArticleURI string `json:"articleUri"`
	Quantity   int32  `json:"quantity"`
}

type orderResponse struct {
	ID          int64               `json:"id"`
	CustomerURI string              `json:"customerUri"`
	Lines       []orderLineResponse `json:"lines"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

func newOrderResponse(mapper *reference.Mapper, order domain.Order) orderResponse {
	resp := orderResponse{
		ID:          order.ID,
		CustomerURI: mapper.Project(reference.KindCustomer, order.CustomerID),
		Lines:       make([]orderLineResponse, 0, len(order.Lines)),
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	for _, line := range order.Lines {
		resp.Lines = append(resp.Lines, orderLineResponse{
			ID:         line.ID,
			ArticleURI: mapper.Project(reference.KindArticle, line.Article.ID),
			Quantity:   line.Quantity,
		})
	}
	return resp
}

type timelineEventResponse struct {
	Type         string    `json:"type"`
	LineCount    int       `json:"line_count"`
	DroppedCount int       `json:"dropped_count,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Occurred     time.Time `json:"occurred"`
}

func newTimelineResponse(events []domain.TimelineEvent) []timelineEventResponse {
	out := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, timelineEventResponse{
			Type:         string(e.Type),
			LineCount:    e.LineCount,
			DroppedCount: e.DroppedCount,
			Reason:       e.Reason,
			Occurred:     e.Occurred,
		})
	}
	return out
}

type articleRequest struct {
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

func (r articleRequest) toDomain() domain.Article {
	return domain.Article{
		Name:      strings.TrimSpace(r.Name),
		Price:     r.Price,
		Available: r.Available,
	}
}

type articleResponse struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func newArticleResponse(a domain.Article) articleResponse {
	return articleResponse{
		ID:        a.ID,
		Name:      a.Name,
		Price:     a.Price,
		Available: a.Available,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

type slowMoverResponse struct {
	Article       articleResponse `json:"article"`
	OrderedAmount int64           `json:"orderedAmount"`
}

type addressDTO struct {
	PostalCode  string `json:"postalCode"`
	City        string `json:"city"`
	Street      string `json:"street"`
	HouseNumber string `json:"houseNumber"`
}

type customerRequest struct {
	LastName  string     `json:"lastName"`
	FirstName string     `json:"firstName"`
	Email     string     `json:"email"`
	Address   addressDTO `json:"address"`
}

func (r customerRequest) toDomain() domain.Customer {
	return domain.Customer{
		LastName:  strings.TrimSpace(r.LastName),
		FirstName: strings.TrimSpace(r.FirstName),
		Email:     strings.TrimSpace(r.Email),
		Address: domain.Address{
			PostalCode:  strings.TrimSpace(r.Address.PostalCode),
			City:        strings.TrimSpace(r.Address.City),
			Street:      strings.TrimSpace(r.Address.Street),
			HouseNumber: strings.TrimSpace(r.Address.HouseNumber),
		},
	}
}

type customerResponse struct {
	ID        int64      `json:"id"`
	LastName  string     `json:"lastName"`
	FirstName string     `json:"firstName,omitempty"`
	Email     string     `json:"email"`
	Address   addressDTO `json:"address"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func newCustomerResponse(c domain.Customer) customerResponse {
	return customerResponse{
		ID:        c.ID,
		LastName:  c.LastName,
		FirstName: c.FirstName,
		Email:     c.Email,
		Address: addressDTO{
			PostalCode:  c.Address.PostalCode,
			City:        c.Address.City,
			Street:      c.Address.Street,
			HouseNumber: c.Address.HouseNumber,
		},
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	store *Store
}

// Create сохраняет заказ с позициями под одной блокировкой, присваивая идентификаторы и метки времени.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order, customerID int64) (domain.Order, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[customerID]; !ok {
		return domain.Order{}, domain.ErrCustomerNotFound
	}

	order = cloneOrder(order)
	order.CustomerID = customerID
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}
	for _, line := range order.Lines {
		if _, ok := s.articles[line.Article.ID]; !ok {
			return domain.Order{}, domain.ErrArticleNotFound
		}
	}

	s.orderSeq++
	now := s.now()
	order.ID = s.orderSeq
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Lines {
		s.lineSeq++
		order.Lines[i].ID = s.lineSeq
	}

	s.orders[order.ID] = order
	return cloneOrder(order), nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id int64) (domain.Order, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return s.withCurrentArticlesLocked(order), nil
}

// ListByCustomer возвращает заказы клиента от новых к старым, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByCustomer(_ context.Context, customerID int64, limit int) ([]domain.Order, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range s.orders {
		if order.CustomerID != customerID {
			continue
		}
		result = append(result, s.withCurrentArticlesLocked(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

func (s *Store) withCurrentArticlesLocked(order domain.Order) domain.Order {
	order = cloneOrder(order)
	for i, line := range order.Lines {
		if article, ok := s.articles[line.Article.ID]; ok {
			order.Lines[i].Article = article
		}
	}
	return order
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)

// Package memory содержит in-memory реализации репозиториев для локальной разработки и тестов.
package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Store — общее in-memory хранилище клиентов, артикулов и заказов.
// Репозитории делят одну блокировку: создание заказа проверяет клиента,
// удаление клиента проверяет заказы, SlowMovers читает позиции.
type Store struct {
	mu sync.RWMutex

	customers map[int64]domain.Customer
	articles  map[int64]domain.Article
	orders    map[int64]domain.Order

	customerSeq int64
	articleSeq  int64
	orderSeq    int64
	lineSeq     int64

	now func() time.Time
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		customers: make(map[int64]domain.Customer),
		articles:  make(map[int64]domain.Article),
		orders:    make(map[int64]domain.Order),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Customers возвращает репозиторий клиентов поверх хранилища.
func (s *Store) Customers() domain.CustomerRepository {
	return &customerRepositoryInMemory{store: s}
}

// Articles возвращает репозиторий артикулов поверх хранилища.
func (s *Store) Articles() domain.ArticleRepository {
	return &articleRepositoryInMemory{store: s}
}

// Orders возвращает репозиторий заказов поверх хранилища.
func (s *Store) Orders() domain.OrderRepository {
	return &orderRepositoryInMemory{store: s}
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	if src.Lines != nil {
		dst.Lines = make([]domain.OrderLine, len(src.Lines))
		copy(dst.Lines, src.Lines)
	}
	return dst
}

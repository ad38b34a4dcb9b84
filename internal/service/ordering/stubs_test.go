package ordering

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

type stubArticles struct {
	domain.ArticleRepository

	mu       sync.Mutex
	articles map[int64]domain.Article
	lookups  [][]int64
	err      error
}

func newStubArticles(ids ...int64) *stubArticles {
	s := &stubArticles{articles: make(map[int64]domain.Article, len(ids))}
	for _, id := range ids {
		s.articles[id] = domain.Article{ID: id, Name: "article"}
	}
	return s
}

func (s *stubArticles) FindByIDs(_ context.Context, ids []int64) ([]domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookups = append(s.lookups, append([]int64(nil), ids...))
	if s.err != nil {
		return nil, s.err
	}

	found := make([]domain.Article, 0, len(ids))
	for _, id := range ids {
		if article, ok := s.articles[id]; ok {
			found = append(found, article)
		}
	}
	// порядок результата не гарантируется контрактом
	sort.Slice(found, func(i, j int) bool { return found[i].ID > found[j].ID })
	return found, nil
}

type stubOrders struct {
	mu        sync.Mutex
	nextID    int64
	orders    map[int64]domain.Order
	createErr error
	creates   int
}

func newStubOrders() *stubOrders {
	return &stubOrders{nextID: 100, orders: make(map[int64]domain.Order)}
}

func (s *stubOrders) Create(_ context.Context, order domain.Order, customerID int64) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creates++
	if s.createErr != nil {
		return domain.Order{}, s.createErr
	}

	s.nextID++
	order.ID = s.nextID
	order.CustomerID = customerID
	for i := range order.Lines {
		order.Lines[i].ID = int64(i + 1)
	}
	s.orders[order.ID] = order
	return order, nil
}

func (s *stubOrders) Get(_ context.Context, id int64) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *stubOrders) ListByCustomer(_ context.Context, customerID int64, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Order
	for _, order := range s.orders {
		if order.CustomerID == customerID {
			result = append(result, order)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type stubCustomers struct {
	domain.CustomerRepository
	customers map[int64]domain.Customer
}

func (s *stubCustomers) Get(_ context.Context, id int64) (domain.Customer, error) {
	customer, ok := s.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

type stubTimeline struct {
	mu     sync.Mutex
	events []domain.TimelineEvent
	err    error
}

func (s *stubTimeline) Append(_ context.Context, event domain.TimelineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubTimeline) List(_ context.Context, orderID int64) ([]domain.TimelineEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.TimelineEvent
	for _, event := range s.events {
		if event.OrderID == orderID {
			result = append(result, event)
		}
	}
	return result, nil
}

type stubOutbox struct {
	domain.OutboxRepository

	mu       sync.Mutex
	messages []domain.OutboxMessage
	err      error
}

func (s *stubOutbox) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.OutboxMessage{}, s.err
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

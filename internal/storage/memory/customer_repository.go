package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type customerRepositoryInMemory struct {
	store *Store
}

func (r *customerRepositoryInMemory) Create(_ context.Context, customer domain.Customer) (domain.Customer, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.emailTakenLocked(customer.Email, 0) {
		return domain.Customer{}, domain.ErrEmailExists
	}

	s.customerSeq++
	now := s.now()
	customer.ID = s.customerSeq
	customer.CreatedAt = now
	customer.UpdatedAt = now
	s.customers[customer.ID] = customer
	return customer, nil
}

func (r *customerRepositoryInMemory) Get(_ context.Context, id int64) (domain.Customer, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

func (r *customerRepositoryInMemory) FindByEmail(_ context.Context, email string) (domain.Customer, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, customer := range s.customers {
		if strings.EqualFold(customer.Email, email) {
			return customer, nil
		}
	}
	return domain.Customer{}, domain.ErrCustomerNotFound
}

func (r *customerRepositoryInMemory) FindByLastName(_ context.Context, lastName string) ([]domain.Customer, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Customer, 0)
	for _, customer := range s.customers {
		if strings.EqualFold(customer.LastName, lastName) {
			result = append(result, customer)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *customerRepositoryInMemory) Update(_ context.Context, customer domain.Customer) (domain.Customer, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.customers[customer.ID]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	if s.emailTakenLocked(customer.Email, customer.ID) {
		return domain.Customer{}, domain.ErrEmailExists
	}

	current.ApplyValues(customer)
	current.UpdatedAt = s.now()
	s.customers[current.ID] = current
	return current, nil
}

func (r *customerRepositoryInMemory) Delete(_ context.Context, id int64) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return domain.ErrCustomerNotFound
	}
	for _, order := range s.orders {
		if order.CustomerID == id {
			return domain.ErrCustomerHasOrders
		}
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) emailTakenLocked(email string, ownerID int64) bool {
	for id, customer := range s.customers {
		if id != ownerID && strings.EqualFold(customer.Email, email) {
			return true
		}
	}
	return false
}

var _ domain.CustomerRepository = (*customerRepositoryInMemory)(nil)

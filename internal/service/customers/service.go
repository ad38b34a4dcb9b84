// Package customers управляет клиентами магазина.
package customers

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Service — операции над клиентами.
type Service struct {
	customers domain.CustomerRepository
	logger    *log.Entry
}

// NewService создаёт сервис клиентов.
func NewService(customers domain.CustomerRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "customers")
	}
	return &Service{customers: customers, logger: logger}
}

// Create проверяет инварианты и сохраняет клиента. Занятый email даёт ErrEmailExists.
func (s *Service) Create(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	customer.Email = strings.TrimSpace(customer.Email)
	if errs := customer.ValidateInvariants(); len(errs) > 0 {
		return domain.Customer{}, errors.Join(errs...)
	}

	if err := s.ensureEmailFree(ctx, customer.Email, 0); err != nil {
		return domain.Customer{}, err
	}

	created, err := s.customers.Create(ctx, customer)
	if err != nil {
		s.logFailure(err, "Create", 0)
		return domain.Customer{}, err
	}

	s.logger.WithField("customer_id", created.ID).Info("customer created")
	return created, nil
}

// Get возвращает клиента или ErrCustomerNotFound.
func (s *Service) Get(ctx context.Context, id int64) (domain.Customer, error) {
	return s.customers.Get(ctx, id)
}

// Search ищет по email (точное совпадение) либо по фамилии.
func (s *Service) Search(ctx context.Context, email, lastName string) ([]domain.Customer, error) {
	email = strings.TrimSpace(email)
	lastName = strings.TrimSpace(lastName)

	switch {
	case email != "":
		customer, err := s.customers.FindByEmail(ctx, email)
		if errors.Is(err, domain.ErrCustomerNotFound) {
			return []domain.Customer{}, nil
		}
		if err != nil {
			return nil, err
		}
		if lastName != "" && !strings.EqualFold(customer.LastName, lastName) {
			return []domain.Customer{}, nil
		}
		return []domain.Customer{customer}, nil
	case lastName != "":
		return s.customers.FindByLastName(ctx, lastName)
	default:
		return nil, domain.ErrSearchCriteriaRequired
	}
}

// Update переносит новые значения в существующего клиента.
// Email, занятый другим клиентом, даёт ErrEmailExists.
func (s *Service) Update(ctx context.Context, id int64, update domain.Customer) (domain.Customer, error) {
	current, err := s.customers.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	update.Email = strings.TrimSpace(update.Email)
	current.ApplyValues(update)
	if errs := current.ValidateInvariants(); len(errs) > 0 {
		return domain.Customer{}, errors.Join(errs...)
	}
	if err := s.ensureEmailFree(ctx, current.Email, id); err != nil {
		return domain.Customer{}, err
	}

	updated, err := s.customers.Update(ctx, current)
	if err != nil {
		s.logFailure(err, "Update", id)
		return domain.Customer{}, err
	}
	return updated, nil
}

// Delete удаляет клиента без заказов.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.customers.Delete(ctx, id); err != nil {
		s.logFailure(err, "Delete", id)
		return err
	}
	s.logger.WithField("customer_id", id).Info("customer deleted")
	return nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email string, ownerID int64) error {
	existing, err := s.customers.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrCustomerNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != ownerID:
		return domain.ErrEmailExists
	default:
		return nil
	}
}

func (s *Service) logFailure(err error, operation string, id int64) {
	entry := s.logger.WithError(err).WithFields(log.Fields{
		"operation":   operation,
		"customer_id": id,
	})
	if domain.IsConflict(err) || domain.IsNotFound(err) {
		entry.Info("customer operation rejected")
		return
	}
	entry.Error("customer operation failed")
}

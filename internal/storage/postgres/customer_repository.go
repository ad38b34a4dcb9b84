package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

var customerColumns = []string{
	"id", "last_name", "first_name", "email",
	"postal_code", "city", "street", "house_number",
	"created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

type customerRepository struct {
	db *sql.DB
}

// NewCustomerRepository создаёт PostgreSQL-реализацию CustomerRepository.
func NewCustomerRepository(store *Store) domain.CustomerRepository {
	return &customerRepository{db: store.DB()}
}

func (r *customerRepository) Create(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO customers (
			last_name, first_name, email, postal_code, city, street, house_number
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at, updated_at
	`,
		customer.LastName, customer.FirstName, customer.Email,
		customer.Address.PostalCode, customer.Address.City, customer.Address.Street, customer.Address.HouseNumber,
	).Scan(&customer.ID, &customer.CreatedAt, &customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Customer{}, domain.ErrEmailExists
		}
		return domain.Customer{}, fmt.Errorf("insert customer: %w", err)
	}

	return customer, nil
}

func (r *customerRepository) Get(ctx context.Context, id int64) (domain.Customer, error) {
	return r.findOne(ctx, sq.Eq{"id": id})
}

func (r *customerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	return r.findOne(ctx, sq.Expr("LOWER(email) = LOWER(?)", email))
}

func (r *customerRepository) FindByLastName(ctx context.Context, lastName string) ([]domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Select(customerColumns...).
		From("customers").
		Where(sq.Expr("LOWER(last_name) = LOWER(?)", lastName)).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build customer search: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search customers: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Customer, 0)
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customer rows: %w", err)
	}

	return result, nil
}

func (r *customerRepository) Update(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx, `
		UPDATE customers
		SET last_name = $1,
		    first_name = $2,
		    email = $3,
		    postal_code = $4,
		    city = $5,
		    street = $6,
		    house_number = $7,
		    updated_at = NOW()
		WHERE id = $8
		RETURNING created_at, updated_at
	`,
		customer.LastName, customer.FirstName, customer.Email,
		customer.Address.PostalCode, customer.Address.City, customer.Address.Street, customer.Address.HouseNumber,
		customer.ID,
	).Scan(&customer.CreatedAt, &customer.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return domain.Customer{}, domain.ErrCustomerNotFound
		case isUniqueViolation(err):
			return domain.Customer{}, domain.ErrEmailExists
		default:
			return domain.Customer{}, fmt.Errorf("update customer: %w", err)
		}
	}

	return customer, nil
}

func (r *customerRepository) Delete(ctx context.Context, id int64) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var hasOrders bool
	if err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM orders WHERE customer_id = $1)
	`, id).Scan(&hasOrders); err != nil {
		return fmt.Errorf("check customer orders: %w", err)
	}
	if hasOrders {
		return domain.ErrCustomerHasOrders
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrCustomerHasOrders
		}
		return fmt.Errorf("delete customer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCustomerNotFound
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete customer: %w", err)
	}
	return nil
}

func (r *customerRepository) findOne(ctx context.Context, pred sq.Sqlizer) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Select(customerColumns...).From("customers").Where(pred).ToSql()
	if err != nil {
		return domain.Customer{}, fmt.Errorf("build customer query: %w", err)
	}

	customer, err := scanCustomer(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, err
	}
	return customer, nil
}

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(
		&c.ID, &c.LastName, &c.FirstName, &c.Email,
		&c.Address.PostalCode, &c.Address.City, &c.Address.Street, &c.Address.HouseNumber,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, err
		}
		return domain.Customer{}, fmt.Errorf("scan customer: %w", err)
	}
	return c, nil
}

var _ domain.CustomerRepository = (*customerRepository)(nil)

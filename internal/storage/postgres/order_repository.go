package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// Create вставляет заказ и позиции в одной транзакции.
func (r *orderRepository) Create(ctx context.Context, order domain.Order, customerID int64) (_ domain.Order, err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	created := domain.Order{CustomerID: customerID, Lines: make([]domain.OrderLine, len(order.Lines))}
	copy(created.Lines, order.Lines)

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (customer_id)
		VALUES ($1)
		RETURNING id, created_at, updated_at
	`, customerID).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Order{}, domain.ErrCustomerNotFound
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for pos := range created.Lines {
		line := &created.Lines[pos]
		if err = tx.QueryRowContext(ctx, `
			INSERT INTO order_lines (order_id, position, article_id, quantity)
			VALUES ($1,$2,$3,$4)
			RETURNING id
		`, created.ID, pos, line.Article.ID, line.Quantity).Scan(&line.ID); err != nil {
			if isForeignKeyViolation(err) {
				return domain.Order{}, domain.ErrArticleNotFound
			}
			return domain.Order{}, fmt.Errorf("insert order line: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit create order: %w", err)
	}

	return created, nil
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var order domain.Order
	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.CustomerID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	lines, err := r.loadLines(ctx, []int64{order.ID})
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines[order.ID]

	return order, nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	builder := psql.Select("id", "customer_id", "created_at", "updated_at").
		From("orders").
		Where(sq.Eq{"customer_id": customerID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.CustomerID, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	lines, err := r.loadLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}

	return orders, nil
}

// loadLines загружает позиции нескольких заказов одним запросом вместе со снимками артикулов.
func (r *orderRepository) loadLines(ctx context.Context, orderIDs []int64) (map[int64][]domain.OrderLine, error) {
	result := make(map[int64][]domain.OrderLine, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	query, args, err := psql.Select(
		"l.order_id", "l.id", "l.quantity",
		"a.id", "a.name", "a.price", "a.available", "a.created_at", "a.updated_at",
	).
		From("order_lines l").
		Join("articles a ON a.id = l.article_id").
		Where(sq.Eq{"l.order_id": orderIDs}).
		OrderBy("l.order_id", "l.position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build order lines query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			line    domain.OrderLine
		)
		a := &line.Article
		if err := rows.Scan(&orderID, &line.ID, &line.Quantity,
			&a.ID, &a.Name, &a.Price, &a.Available, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		result[orderID] = append(result[orderID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}

	return result, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)

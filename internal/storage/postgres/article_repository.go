package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

var articleColumns = []string{"id", "name", "price", "available", "created_at", "updated_at"}

type articleRepository struct {
	db *sql.DB
}

// NewArticleRepository создаёт PostgreSQL-реализацию ArticleRepository.
func NewArticleRepository(store *Store) domain.ArticleRepository {
	return &articleRepository{db: store.DB()}
}

func (r *articleRepository) Create(ctx context.Context, article domain.Article) (domain.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO articles (name, price, available)
		VALUES ($1,$2,$3)
		RETURNING id, created_at, updated_at
	`, article.Name, article.Price, article.Available).Scan(&article.ID, &article.CreatedAt, &article.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Article{}, domain.ErrArticleNameExists
		}
		return domain.Article{}, fmt.Errorf("insert article: %w", err)
	}

	return article, nil
}

func (r *articleRepository) Get(ctx context.Context, id int64) (domain.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	article, err := scanArticle(r.db.QueryRowContext(ctx, `
		SELECT id, name, price, available, created_at, updated_at
		FROM articles
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Article{}, domain.ErrArticleNotFound
		}
		return domain.Article{}, err
	}
	return article, nil
}

// FindByIDs выполняет один запрос `id IN (...)`; пустой набор не обращается к базе.
func (r *articleRepository) FindByIDs(ctx context.Context, ids []int64) ([]domain.Article, error) {
	if len(ids) == 0 {
		return []domain.Article{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build article lookup: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find articles by ids: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Article, 0, len(ids))
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article rows: %w", err)
	}

	return result, nil
}

func (r *articleRepository) Update(ctx context.Context, article domain.Article) (domain.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx, `
		UPDATE articles
		SET name = $1,
		    price = $2,
		    available = $3,
		    updated_at = NOW()
		WHERE id = $4
		RETURNING created_at, updated_at
	`, article.Name, article.Price, article.Available, article.ID).Scan(&article.CreatedAt, &article.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return domain.Article{}, domain.ErrArticleNotFound
		case isUniqueViolation(err):
			return domain.Article{}, domain.ErrArticleNameExists
		default:
			return domain.Article{}, fmt.Errorf("update article: %w", err)
		}
	}

	return article, nil
}

func (r *articleRepository) SlowMovers(ctx context.Context, maxOrdered int64) ([]domain.ArticleUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := slowMoversQuery(maxOrdered).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build slow movers query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query slow movers: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ArticleUsage, 0)
	for rows.Next() {
		var usage domain.ArticleUsage
		a := &usage.Article
		if err := rows.Scan(&a.ID, &a.Name, &a.Price, &a.Available, &a.CreatedAt, &a.UpdatedAt, &usage.OrderedAmount); err != nil {
			return nil, fmt.Errorf("scan slow mover: %w", err)
		}
		result = append(result, usage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slow movers: %w", err)
	}

	return result, nil
}

func slowMoversQuery(maxOrdered int64) sq.SelectBuilder {
	return psql.Select(
		"a.id", "a.name", "a.price", "a.available", "a.created_at", "a.updated_at",
		"COALESCE(SUM(l.quantity), 0) AS ordered",
	).
		From("articles a").
		LeftJoin("order_lines l ON l.article_id = a.id").
		GroupBy("a.id").
		Having("COALESCE(SUM(l.quantity), 0) <= ?", maxOrdered).
		OrderBy("ordered ASC", "a.id ASC")
}

func scanArticle(row rowScanner) (domain.Article, error) {
	var a domain.Article
	if err := row.Scan(&a.ID, &a.Name, &a.Price, &a.Available, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Article{}, err
		}
		return domain.Article{}, fmt.Errorf("scan article: %w", err)
	}
	return a, nil
}

var _ domain.ArticleRepository = (*articleRepository)(nil)

// Package catalog управляет артикулами.
package catalog

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Service — операции каталога поверх ArticleRepository.
type Service struct {
	articles domain.ArticleRepository
	logger   *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(articles domain.ArticleRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "catalog")
	}
	return &Service{articles: articles, logger: logger}
}

// Create проверяет и сохраняет новый артикул. Занятое название даёт ErrArticleNameExists.
func (s *Service) Create(ctx context.Context, article domain.Article) (domain.Article, error) {
	if errs := article.ValidateInvariants(); len(errs) > 0 {
		return domain.Article{}, errors.Join(errs...)
	}

	created, err := s.articles.Create(ctx, article)
	if err != nil {
		s.logFailure(err, "Create", article.ID)
		return domain.Article{}, err
	}

	s.logger.WithFields(log.Fields{
		"article_id": created.ID,
		"name":       created.Name,
	}).Info("article created")
	return created, nil
}

// Get возвращает артикул или ErrArticleNotFound.
func (s *Service) Get(ctx context.Context, id int64) (domain.Article, error) {
	return s.articles.Get(ctx, id)
}

// Update переносит новые значения в существующий артикул.
func (s *Service) Update(ctx context.Context, id int64, update domain.Article) (domain.Article, error) {
	current, err := s.articles.Get(ctx, id)
	if err != nil {
		return domain.Article{}, err
	}

	current.ApplyValues(update)
	if errs := current.ValidateInvariants(); len(errs) > 0 {
		return domain.Article{}, errors.Join(errs...)
	}

	updated, err := s.articles.Update(ctx, current)
	if err != nil {
		s.logFailure(err, "Update", id)
		return domain.Article{}, err
	}
	return updated, nil
}

// SlowMovers возвращает артикулы, заказанные суммарно не более maxOrdered раз.
func (s *Service) SlowMovers(ctx context.Context, maxOrdered int64) ([]domain.ArticleUsage, error) {
	if maxOrdered < 0 {
		maxOrdered = 0
	}
	return s.articles.SlowMovers(ctx, maxOrdered)
}

func (s *Service) logFailure(err error, operation string, id int64) {
	entry := s.logger.WithError(err).WithFields(log.Fields{
		"operation":  operation,
		"article_id": id,
	})
	if domain.IsConflict(err) || domain.IsNotFound(err) {
		entry.Info("article operation rejected")
		return
	}
	entry.Error("article operation failed")
}

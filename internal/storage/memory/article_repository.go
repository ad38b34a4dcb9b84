package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type articleRepositoryInMemory struct {
	store *Store
}

func (r *articleRepositoryInMemory) Create(_ context.Context, article domain.Article) (domain.Article, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.articleNameTakenLocked(article.Name, 0) {
		return domain.Article{}, domain.ErrArticleNameExists
	}

	s.articleSeq++
	now := s.now()
	article.ID = s.articleSeq
	article.CreatedAt = now
	article.UpdatedAt = now
	s.articles[article.ID] = article
	return article, nil
}

func (r *articleRepositoryInMemory) Get(_ context.Context, id int64) (domain.Article, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	article, ok := s.articles[id]
	if !ok {
		return domain.Article{}, domain.ErrArticleNotFound
	}
	return article, nil
}

// FindByIDs возвращает найденные артикулы; пустой ввод не трогает хранилище.
func (r *articleRepositoryInMemory) FindByIDs(_ context.Context, ids []int64) ([]domain.Article, error) {
	if len(ids) == 0 {
		return []domain.Article{}, nil
	}

	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]struct{}, len(ids))
	result := make([]domain.Article, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if article, ok := s.articles[id]; ok {
			result = append(result, article)
		}
	}
	return result, nil
}

func (r *articleRepositoryInMemory) Update(_ context.Context, article domain.Article) (domain.Article, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.articles[article.ID]
	if !ok {
		return domain.Article{}, domain.ErrArticleNotFound
	}
	if s.articleNameTakenLocked(article.Name, article.ID) {
		return domain.Article{}, domain.ErrArticleNameExists
	}

	current.ApplyValues(article)
	current.UpdatedAt = s.now()
	s.articles[current.ID] = current
	return current, nil
}

// SlowMovers суммирует количество по позициям всех заказов; артикулы без заказов имеют 0.
func (r *articleRepositoryInMemory) SlowMovers(_ context.Context, maxOrdered int64) ([]domain.ArticleUsage, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := make(map[int64]int64, len(s.articles))
	for _, order := range s.orders {
		for _, line := range order.Lines {
			ordered[line.Article.ID] += int64(line.Quantity)
		}
	}

	result := make([]domain.ArticleUsage, 0)
	for id, article := range s.articles {
		if amount := ordered[id]; amount <= maxOrdered {
			result = append(result, domain.ArticleUsage{Article: article, OrderedAmount: amount})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].OrderedAmount != result[j].OrderedAmount {
			return result[i].OrderedAmount < result[j].OrderedAmount
		}
		return result[i].Article.ID < result[j].Article.ID
	})
	return result, nil
}

func (s *Store) articleNameTakenLocked(name string, ownerID int64) bool {
	for id, article := range s.articles {
		if id != ownerID && article.Name == name {
			return true
		}
	}
	return false
}

var _ domain.ArticleRepository = (*articleRepositoryInMemory)(nil)

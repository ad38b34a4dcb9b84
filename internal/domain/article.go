package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Article — артикул каталога. Внутри конвейера заказа используется как снимок только для чтения.
type Article struct {
	ID        int64
	Name      string
	Price     decimal.Decimal
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет инварианты артикула.
func (a *Article) ValidateInvariants() []error {
	var errs []error

	if !lengthBetween(a.Name, nameLengthMin, nameLengthMax) {
		errs = append(errs, ErrArticleNameInvalid)
	}
	if a.Price.IsNegative() {
		errs = append(errs, ErrArticlePriceNegative)
	}

	return errs
}

// ApplyValues переносит изменяемые поля из update, сохраняя идентичность и метки времени.
func (a *Article) ApplyValues(update Article) {
	a.Name = update.Name
	a.Price = update.Price
	a.Available = update.Available
}

// ArticleUsage — артикул вместе с суммарным количеством заказанных единиц.
type ArticleUsage struct {
	Article       Article
	OrderedAmount int64
}

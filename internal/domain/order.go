package domain

import "time"

// OrderLineRequest — запрошенная позиция до сборки: ссылка на артикул плюс атрибуты позиции.
// Существует только внутри конвейера сборки и не сохраняется как есть.
type OrderLineRequest struct {
	ArticleRef string
	Quantity   int32
}

// OrderRequest — входящий заказ с внешними ссылками на клиента и артикулы.
type OrderRequest struct {
	CustomerRef string
	Lines       []OrderLineRequest
}

// OrderLine — позиция собранного заказа с прямой ассоциацией на снимок артикула.
type OrderLine struct {
	ID       int64
	Article  Article
	Quantity int32
}

// Order агрегирует клиента и упорядоченный список позиций.
type Order struct {
	ID         int64
	CustomerID int64
	Lines      []OrderLine
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ArticleIDs возвращает идентификаторы артикулов позиций в порядке позиций (с повторами).
func (o *Order) ArticleIDs() []int64 {
	ids := make([]int64, 0, len(o.Lines))
	for _, line := range o.Lines {
		ids = append(ids, line.Article.ID)
	}
	return ids
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == 0 {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}
	for _, line := range o.Lines {
		if line.Article.ID == 0 {
			errs = append(errs, ErrLineArticleRequired)
		}
		if line.Quantity <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
	}

	return errs
}

// LinkRelation — тип связи в гипермедиа-представлении.
type LinkRelation string

const (
	LinkSelf     LinkRelation = "self"
	LinkAdd      LinkRelation = "add"
	LinkCustomer LinkRelation = "customer"
	LinkArticle  LinkRelation = "article"
)

// Link — пара отношение/целевая ссылка.
type Link struct {
	Rel    LinkRelation
	Target string
}

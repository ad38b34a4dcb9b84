package ordering

import "github.com/vladislavdragonenkov/shop/internal/domain"

// Причины отбрасывания позиции при сверке.
const (
	DropReasonUnresolvable = "unresolvable"
	DropReasonNotFound     = "not_found"
)

// ResolvedLine — запрошенная позиция вместе с результатом разбора ссылки на артикул.
type ResolvedLine struct {
	Position int
	ID       int64
	Resolved bool
	Request  domain.OrderLineRequest
}

// DroppedLine описывает позицию, не попавшую в заказ.
type DroppedLine struct {
	Position  int
	Reference string
	Reason    string
}

// Reconcile оставляет только позиции, чей артикул есть в found, сохраняя исходный порядок и повторы.
// Входные срезы не изменяются.
func Reconcile(lines []ResolvedLine, found []domain.Article) ([]domain.OrderLine, []DroppedLine) {
	index := make(map[int64]domain.Article, len(found))
	for _, article := range found {
		index[article.ID] = article
	}

	kept := make([]domain.OrderLine, 0, len(lines))
	var dropped []DroppedLine

	for _, line := range lines {
		if !line.Resolved {
			dropped = append(dropped, DroppedLine{
				Position:  line.Position,
				Reference: line.Request.ArticleRef,
				Reason:    DropReasonUnresolvable,
			})
			continue
		}

		article, ok := index[line.ID]
		if !ok {
			dropped = append(dropped, DroppedLine{
				Position:  line.Position,
				Reference: line.Request.ArticleRef,
				Reason:    DropReasonNotFound,
			})
			continue
		}

		kept = append(kept, domain.OrderLine{
			Article:  article,
			Quantity: line.Request.Quantity,
		})
	}

	return kept, dropped
}

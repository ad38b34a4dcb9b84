package ordering

import (
	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/reference"
)

// Projector строит гипермедиа-ссылки сохранённого заказа.
type Projector struct {
	mapper *reference.Mapper
}

// NewProjector создаёт Projector поверх mapper.
func NewProjector(mapper *reference.Mapper) *Projector {
	return &Projector{mapper: mapper}
}

// Project возвращает self, add, customer и по одной ссылке article на каждую позицию в порядке позиций.
func (p *Projector) Project(order domain.Order) []domain.Link {
	links := make([]domain.Link, 0, 3+len(order.Lines))
	links = append(links,
		domain.Link{Rel: domain.LinkSelf, Target: p.mapper.Project(reference.KindOrder, order.ID)},
		domain.Link{Rel: domain.LinkAdd, Target: p.mapper.Collection(reference.KindOrder)},
		domain.Link{Rel: domain.LinkCustomer, Target: p.CustomerURI(order)},
	)
	for _, line := range order.Lines {
		links = append(links, domain.Link{Rel: domain.LinkArticle, Target: p.ArticleURI(line.Article.ID)})
	}
	return links
}

// OrderURI возвращает ссылку на заказ.
func (p *Projector) OrderURI(id int64) string {
	return p.mapper.Project(reference.KindOrder, id)
}

// CustomerURI возвращает структурную ссылку на клиента заказа.
func (p *Projector) CustomerURI(order domain.Order) string {
	return p.mapper.Project(reference.KindCustomer, order.CustomerID)
}

// ArticleURI возвращает структурную ссылку на артикул.
func (p *Projector) ArticleURI(id int64) string {
	return p.mapper.Project(reference.KindArticle, id)
}

package domain

import "context"

// CustomerRepository описывает требования к хранилищу клиентов.
type CustomerRepository interface {
	// Create сохраняет клиента и присваивает ему идентификатор. Занятый email даёт ErrEmailExists.
	Create(ctx context.Context, customer Customer) (Customer, error)
	// Get возвращает клиента или ErrCustomerNotFound.
	Get(ctx context.Context, id int64) (Customer, error)
	// FindByEmail возвращает клиента по email или ErrCustomerNotFound.
	FindByEmail(ctx context.Context, email string) (Customer, error)
	// FindByLastName возвращает клиентов с указанной фамилией, упорядоченных по id.
	FindByLastName(ctx context.Context, lastName string) ([]Customer, error)
	// Update перезаписывает изменяемые поля клиента.
	Update(ctx context.Context, customer Customer) (Customer, error)
	// Delete удаляет клиента. Наличие заказов даёт ErrCustomerHasOrders.
	Delete(ctx context.Context, id int64) error
}

// ArticleRepository описывает требования к каталогу артикулов.
type ArticleRepository interface {
	Create(ctx context.Context, article Article) (Article, error)
	// Get возвращает артикул или ErrArticleNotFound.
	Get(ctx context.Context, id int64) (Article, error)
	// FindByIDs возвращает найденные артикулы из набора ids.
	// Отсутствующие ids молча пропускаются, порядок результата не гарантируется.
	FindByIDs(ctx context.Context, ids []int64) ([]Article, error)
	Update(ctx context.Context, article Article) (Article, error)
	// SlowMovers возвращает артикулы, заказанные суммарно не более maxOrdered раз.
	SlowMovers(ctx context.Context, maxOrdered int64) ([]ArticleUsage, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create атомарно сохраняет заказ с позициями для существующего клиента,
	// присваивает идентификаторы и метки времени. Неизвестный клиент даёт ErrCustomerNotFound.
	Create(ctx context.Context, order Order, customerID int64) (Order, error)
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id int64) (Order, error)
	// ListByCustomer возвращает заказы клиента с опциональным ограничением на количество.
	ListByCustomer(ctx context.Context, customerID int64, limit int) ([]Order, error)
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvableCustomer — ссылка на клиента отсутствует или не содержит числового идентификатора.
	ErrUnresolvableCustomer = errors.New("customer reference cannot be resolved")
	// ErrNoResolvableArticles — ни одна ссылка на артикул в позициях не разобрана.
	ErrNoResolvableArticles = errors.New("no article reference can be resolved")
	// ErrNoArticlesFound — идентификаторы корректны, но ни один артикул не найден в хранилище.
	ErrNoArticlesFound = errors.New("no referenced article exists")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrCustomerNotFound возвращается, если клиент не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrArticleNotFound возвращается, если артикул не найден.
	ErrArticleNotFound = errors.New("article not found")

	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrLinesRequired = errors.New("order must contain at least one line")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrLineQtyInvalid = errors.New("line quantity must be greater than zero")
	// Ошибка позиции без артикула.
	ErrLineArticleRequired = errors.New("line article is required")

	// ErrArticleNameInvalid — название артикула вне допустимой длины.
	ErrArticleNameInvalid = errors.New("article name must be 2..32 characters")
	// ErrArticlePriceNegative — отрицательная цена артикула.
	ErrArticlePriceNegative = errors.New("article price must be non-negative")
	// ErrArticleNameExists — артикул с таким названием уже существует.
	ErrArticleNameExists = errors.New("article name already exists")

	// ErrLastNameInvalid — фамилия клиента вне допустимой длины.
	ErrLastNameInvalid = errors.New("last name must be 2..32 characters")
	// ErrEmailInvalid — email пустой или без '@'.
	ErrEmailInvalid = errors.New("email is invalid")
	// ErrEmailExists — email уже занят другим клиентом.
	ErrEmailExists = errors.New("email already exists")
	// ErrCustomerHasOrders — клиента нельзя удалить, пока у него есть заказы.
	ErrCustomerHasOrders = errors.New("customer has orders")
	// ErrSearchCriteriaRequired — поиск клиентов без email и фамилии.
	ErrSearchCriteriaRequired = errors.New("email or last name is required")
	// Ошибки адреса.
	ErrPostalCodeInvalid  = errors.New("postal code must be exactly 5 digits")
	ErrCityInvalid        = errors.New("city must be 2..32 characters")
	ErrStreetInvalid      = errors.New("street must be 2..32 characters")
	ErrHouseNumberInvalid = errors.New("house number must be at most 4 characters")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrTimelineEventInvalid — событие timeline с неизвестным типом или без заказа.
	ErrTimelineEventInvalid = errors.New("timeline event is invalid")

	// Ошибки idempotency-хранилища.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// Виды отказов сборки заказа.
const (
	FailureUnresolvableCustomer = "UnresolvableCustomer"
	FailureNoResolvableArticles = "NoResolvableArticles"
	FailureNoArticlesFound      = "NoArticlesFound"
)

// AssemblyError описывает фатальный отказ сборки заказа вместе с проблемной ссылкой.
// Reference содержит сырой хвост ссылки либо первый запрошенный идентификатор.
type AssemblyError struct {
	Err       error
	Reference string
}

func (e *AssemblyError) Error() string {
	if e.Reference == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %q", e.Err.Error(), e.Reference)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

// Kind возвращает имя вида отказа.
func (e *AssemblyError) Kind() string {
	switch {
	case errors.Is(e.Err, ErrUnresolvableCustomer):
		return FailureUnresolvableCustomer
	case errors.Is(e.Err, ErrNoResolvableArticles):
		return FailureNoResolvableArticles
	case errors.Is(e.Err, ErrNoArticlesFound):
		return FailureNoArticlesFound
	default:
		return "Unknown"
	}
}

// IsAssemblyFailure проверяет, что ошибка относится к отказам сборки, а не к инфраструктуре.
func IsAssemblyFailure(err error) bool {
	var assemblyErr *AssemblyError
	return errors.As(err, &assemblyErr)
}

// IsNotFound объединяет все not-found ошибки домена.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrArticleNotFound)
}

// IsValidation сообщает, что ошибка (или одна из объединённых errors.Join) — нарушение инварианта сущности.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var validationErrors = []error{
	ErrCustomerRequired,
	ErrLinesRequired,
	ErrLineQtyInvalid,
	ErrLineArticleRequired,
	ErrArticleNameInvalid,
	ErrArticlePriceNegative,
	ErrLastNameInvalid,
	ErrEmailInvalid,
	ErrSearchCriteriaRequired,
	ErrPostalCodeInvalid,
	ErrCityInvalid,
	ErrStreetInvalid,
	ErrHouseNumberInvalid,
}

// IsConflict объединяет ошибки уникальности и запрета удаления.
func IsConflict(err error) bool {
	return errors.Is(err, ErrArticleNameExists) ||
		errors.Is(err, ErrEmailExists) ||
		errors.Is(err, ErrCustomerHasOrders)
}

// IsIdempotencyConflict проверяет, что ключ уже использован (тем же или другим запросом).
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

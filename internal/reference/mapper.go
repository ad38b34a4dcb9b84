// Package reference переводит внешние ссылки вида ".../customers/42" в идентификаторы и обратно.
package reference

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Kind — тип сущности, на которую указывает ссылка; значение совпадает с сегментом коллекции.
type Kind string

const (
	KindCustomer Kind = "customers"
	KindArticle  Kind = "articles"
	KindOrder    Kind = "orders"
)

// Resolve извлекает идентификатор из последнего сегмента пути.
// Пустая ссылка или нечисловой хвост дают (0, false); ошибок и паник нет.
func Resolve(ref string) (int64, bool) {
	if ref == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(Tail(ref), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Tail возвращает сырой хвост ссылки после последнего '/'.
func Tail(ref string) string {
	return ref[strings.LastIndexByte(ref, '/')+1:]
}

// Mapper — двунаправленное отображение ссылка <-> идентификатор относительно базового URL.
type Mapper struct {
	base string
}

// NewMapper создаёт Mapper. baseURL должен быть абсолютным http(s) URL.
func NewMapper(baseURL string) (*Mapper, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must use http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", baseURL)
	}
	u.RawQuery = ""
	u.Fragment = ""

	return &Mapper{base: strings.TrimRight(u.String(), "/")}, nil
}

// Resolve делегирует в пакетный Resolve.
func (m *Mapper) Resolve(ref string) (int64, bool) {
	return Resolve(ref)
}

// Project строит ссылку на сущность kind с идентификатором id.
func (m *Mapper) Project(kind Kind, id int64) string {
	return m.Collection(kind) + "/" + strconv.FormatInt(id, 10)
}

// Collection строит ссылку на коллекцию kind.
func (m *Mapper) Collection(kind Kind) string {
	return m.base + "/" + string(kind)
}

// Base возвращает нормализованный базовый URL.
func (m *Mapper) Base() string {
	return m.base
}

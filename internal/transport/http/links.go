package httptransport

import (
	"fmt"
	"net/http"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// addLinkHeaders выводит ссылки в формате RFC 8288, по одному полю Link на ссылку.
func addLinkHeaders(header http.Header, links []domain.Link) {
	for _, link := range links {
		header.Add("Link", fmt.Sprintf("<%s>; rel=%q", link.Target, string(link.Rel)))
	}
}

package githubapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/ghwire/ghwire/pkg/apierr"
	"github.com/ghwire/ghwire/pkg/pagination"
)

// totalCountHeader advertises the full collection size on list
// responses. Only the first page's value is trusted.
const totalCountHeader = "X-Total-Count"

// List returns a lazy iterator over a paginated collection endpoint.
// Each page fetch runs through the full orchestrated request path, so
// retries, quota waits, and the circuit breaker all apply per page.
//
// List is a function rather than a method because Go methods cannot
// introduce type parameters.
func List[T any](c *Client, path string) *pagination.Iterator[T] {
	return pagination.NewIterator(c.resolve(path), func(ctx context.Context, pageURL string) (pagination.Page[T], error) {
		return fetchPage[T](ctx, c, pageURL)
	})
}

// ListAll drains a paginated collection into one slice. Suitable for
// bounded collections only; unbounded ones should walk the iterator.
func ListAll[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	return pagination.Collect(ctx, List[T](c, path))
}

// fetchPage retrieves one page and its navigation links.
func fetchPage[T any](ctx context.Context, c *Client, pageURL string) (pagination.Page[T], error) {
	response, err := c.doRaw(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return pagination.Page[T]{}, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return pagination.Page[T]{}, apierr.Response(response.Header.Get("X-GitHub-Request-Id"), err)
	}

	var items []T
	if err := json.Unmarshal(body, &items); err != nil {
		return pagination.Page[T]{}, apierr.Response(response.Header.Get("X-GitHub-Request-Id"), err)
	}

	// Malformed or absent count headers leave TotalCount at zero.
	totalCount, _ := strconv.Atoi(response.Header.Get(totalCountHeader))

	return pagination.Page[T]{
		Items:      items,
		Links:      pagination.ParseLinks(response.Header.Get("Link")),
		TotalCount: totalCount,
	}, nil
}

// Package pagination walks GitHub's Link-header style paginated
// collections as a lazy, forward-only iterator.
package pagination

import (
	"context"
	"errors"
	"net/url"
	"strconv"
)

// ErrExhausted is returned by Next once the final page has been
// consumed. Iterators are forward-only and cannot be restarted; create
// a new one to re-walk a collection.
var ErrExhausted = errors.New("pagination: iterator exhausted")

// Page is one fetched page of a collection plus its navigation links.
type Page[T any] struct {
	Items []T
	Links Links

	// TotalCount is the collection size advertised by the response's
	// total-count header, 0 when the endpoint does not provide one.
	TotalCount int
}

// FetchFunc fetches one page by URL. The transport, authentication and
// resilience behavior all live behind this function; the iterator only
// sequences calls to it.
type FetchFunc[T any] func(ctx context.Context, url string) (Page[T], error)

// Iterator lazily walks pages of a collection. No request happens until
// Next is called, and each call fetches at most one page.
//
// Not safe for concurrent use.
type Iterator[T any] struct {
	fetch   FetchFunc[T]
	nextURL string

	started    bool
	exhausted  bool
	totalPages int
	totalCount int
}

// NewIterator creates an iterator starting at firstURL.
func NewIterator[T any](firstURL string, fetch FetchFunc[T]) *Iterator[T] {
	return &Iterator[T]{fetch: fetch, nextURL: firstURL}
}

// Next fetches and returns the next page of items. After the last page
// it returns ErrExhausted. A fetch error is terminal: the iterator is
// exhausted and a fresh one must be created to re-walk the collection.
// Transient failures are already retried inside the fetch path.
func (it *Iterator[T]) Next(ctx context.Context) ([]T, error) {
	if it.exhausted {
		return nil, ErrExhausted
	}

	page, err := it.fetch(ctx, it.nextURL)
	if err != nil {
		it.exhausted = true
		return nil, err
	}

	if !it.started {
		it.started = true
		// The last-rel link and total count are only trusted on the
		// first page; GitHub drops them from deep pages of large
		// collections.
		it.totalPages = pageParam(page.Links.Last)
		it.totalCount = page.TotalCount
	}

	it.nextURL = page.Links.Next
	if it.nextURL == "" {
		it.exhausted = true
	}
	return page.Items, nil
}

// HasMore reports whether another Next call can yield items.
func (it *Iterator[T]) HasMore() bool { return !it.exhausted }

// TotalPages returns the page count advertised by the first fetched
// page's last-rel link, or 0 when unknown (not yet started, or the
// collection fits in one page).
func (it *Iterator[T]) TotalPages() int { return it.totalPages }

// TotalCount returns the collection size advertised by the first fetched
// page's total-count header, or 0 when the endpoint does not provide one.
func (it *Iterator[T]) TotalCount() int { return it.totalCount }

// Collect drains the iterator into a single slice. On error it returns
// the items gathered so far together with the error, so callers can
// keep partial results from a walk that failed midway.
func Collect[T any](ctx context.Context, it *Iterator[T]) ([]T, error) {
	var all []T
	for it.HasMore() {
		items, err := it.Next(ctx)
		if err != nil {
			return all, err
		}
		all = append(all, items...)
	}
	return all, nil
}

// pageParam extracts the "page" query parameter from a pagination URL.
func pageParam(rawURL string) int {
	if rawURL == "" {
		return 0
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	page, err := strconv.Atoi(parsed.Query().Get("page"))
	if err != nil || page < 0 {
		return 0
	}
	return page
}

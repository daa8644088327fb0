// Package ratelimit tracks GitHub API quota state per rate-limit category.
// It parses the X-RateLimit-* response headers and gates outgoing requests
// to avoid bursting into quota exhaustion.
package ratelimit

// Category identifies a GitHub rate-limit bucket. Each category has an
// independent request budget and reset window.
type Category string

const (
	// CategoryCore covers most REST API endpoints.
	CategoryCore Category = "core"

	// CategorySearch covers the search endpoints, which have a much
	// smaller budget than core.
	CategorySearch Category = "search"

	// CategoryGraphQL covers the point-based GraphQL API budget.
	CategoryGraphQL Category = "graphql"
)

// ParseCategory maps the X-RateLimit-Resource header value to a Category.
// Unknown non-empty names are kept as their own bucket so a niche resource
// (e.g. "code_scanning_upload") does not overwrite core's quota snapshot.
// An empty value defaults to CategoryCore.
func ParseCategory(resource string) Category {
	switch resource {
	case "", "core":
		return CategoryCore
	case "search":
		return CategorySearch
	case "graphql":
		return CategoryGraphQL
	default:
		return Category(resource)
	}
}

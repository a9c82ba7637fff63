// Package cache stores Crossref journal search results between requests.
package cache

import (
	"context"
	"strings"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
)

// SearchCache caches journal search results by query.
type SearchCache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, query string) (journals []feeds.NewJournal, ok bool, err error)
	Set(ctx context.Context, query string, journals []feeds.NewJournal) error
}

// NormalizeQuery lower-cases the query and collapses runs of whitespace.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Noop never stores anything.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string) ([]feeds.NewJournal, bool, error) {
	return nil, false, nil
}

// Set discards the results.
func (Noop) Set(context.Context, string, []feeds.NewJournal) error { return nil }

// Package collector provides the quote sources behind the quote board.
package collector

import (
	"context"

	"PatternSentinel/internal/model"
)

// QuoteSource fetches the latest quotes for a set of symbols.
type QuoteSource interface {
	Quotes(ctx context.Context, symbols []string) (*model.QuoteSet, error)
	Name() string
}

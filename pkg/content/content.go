// Package content defines the source of the documents the coordinator seeds
// into operators and re-fetches as ground truth during audits.
package content

import (
	"context"
	"errors"
	"unicode/utf8"
)

// ErrNoDocuments is returned when a source cannot supply enough documents.
var ErrNoDocuments = errors.New("no documents available")

// Document is one piece of external content.
type Document struct {
	// SourceRef identifies the document independently of any operator.
	SourceRef string

	Title    string
	Category string
	Text     string
}

// Fetcher resolves a source ref to its current text.
type Fetcher interface {
	Fetch(ctx context.Context, sourceRef string) (string, error)
}

// Source supplies random documents and ground truth for them.
type Source interface {
	Fetcher

	// Sample returns up to n documents from category whose text is at least
	// minLen runes. An empty category samples across all content. Refs listed
	// in exclude are skipped.
	Sample(ctx context.Context, category string, n, minLen int, exclude map[string]struct{}) ([]Document, error)

	// Close releases any resources held by the source.
	Close() error
}

// Truncate cuts text to at most maxLen runes. maxLen <= 0 disables it.
func Truncate(text string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	return string([]rune(text)[:maxLen])
}

// TruncatingFetcher applies Truncate to every fetched text so ground truth
// matches what was seeded.
type TruncatingFetcher struct {
	Fetcher
	MaxLen int
}

func (f TruncatingFetcher) Fetch(ctx context.Context, sourceRef string) (string, error) {
	text, err := f.Fetcher.Fetch(ctx, sourceRef)
	if err != nil {
		return "", err
	}
	return Truncate(text, f.MaxLen), nil
}

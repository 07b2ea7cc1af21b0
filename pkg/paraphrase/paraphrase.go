// Package paraphrase turns a stored document into a search query. Reads are
// audited with a paraphrase rather than the original so an operator has to
// actually rank its vectors to find the answer.
package paraphrase

import (
	"context"
	"errors"
)

// ErrParaphrase is returned when a generator cannot produce a query.
var ErrParaphrase = errors.New("paraphrase failed")

// Generator produces a query that is semantically close to text.
type Generator interface {
	Paraphrase(ctx context.Context, text string) (string, error)

	// Close releases any resources held by the generator.
	Close() error
}

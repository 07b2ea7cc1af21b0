// Package excerpt implements an offline pkg/paraphrase Generator that picks a
// window of consecutive sentences from the document.
package excerpt

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/papercomputeco/vectorvault/pkg/paraphrase"
)

// DefaultFraction is the share of the document kept when none is configured.
const DefaultFraction = 0.4

// Generator builds queries from document excerpts.
type Generator struct {
	fraction float64

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Generator that keeps roughly fraction of each document,
// starting at a random sentence. fraction outside (0, 1] uses DefaultFraction.
func New(fraction float64, seed uint64) *Generator {
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultFraction
	}
	return &Generator{
		fraction: fraction,
		rng:      rand.New(rand.NewPCG(seed, seed^0xda942042e4dd58b5)),
	}
}

func (g *Generator) Paraphrase(_ context.Context, text string) (string, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return "", fmt.Errorf("%w: empty document", paraphrase.ErrParaphrase)
	}

	target := int(float64(utf8.RuneCountInString(text)) * g.fraction)

	g.mu.Lock()
	start := g.rng.IntN(len(sentences))
	g.mu.Unlock()

	var (
		b    strings.Builder
		size int
	)
	for i := start; i < start+len(sentences) && size < target; i++ {
		s := sentences[i%len(sentences)]
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
		size += utf8.RuneCountInString(s) + 1
	}
	return b.String(), nil
}

func (g *Generator) Close() error {
	return nil
}

// splitSentences breaks text after '.', '!' or '?' followed by a space.
func splitSentences(text string) []string {
	var (
		out  []string
		from int
	)
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' {
			continue
		}
		if s := strings.TrimSpace(string(runes[from : i+1])); s != "" {
			out = append(out, s)
		}
		from = i + 1
	}
	if s := strings.TrimSpace(string(runes[from:])); s != "" {
		out = append(out, s)
	}
	return out
}

var _ paraphrase.Generator = (*Generator)(nil)

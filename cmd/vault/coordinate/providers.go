package coordinatecmder

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/papercomputeco/vectorvault/pkg/content"
	"github.com/papercomputeco/vectorvault/pkg/content/static"
	"github.com/papercomputeco/vectorvault/pkg/content/wikipedia"
	"github.com/papercomputeco/vectorvault/pkg/eventstream"
	"github.com/papercomputeco/vectorvault/pkg/eventstream/kafka"
	"github.com/papercomputeco/vectorvault/pkg/eventstream/nop"
	"github.com/papercomputeco/vectorvault/pkg/ledger"
	"github.com/papercomputeco/vectorvault/pkg/ledger/inmemory"
	ledgersqlite "github.com/papercomputeco/vectorvault/pkg/ledger/sqlite"
	"github.com/papercomputeco/vectorvault/pkg/paraphrase"
	"github.com/papercomputeco/vectorvault/pkg/paraphrase/excerpt"
	"github.com/papercomputeco/vectorvault/pkg/paraphrase/ollama"
)

const (
	contentWikipedia = "wikipedia"
	contentStatic    = "static"

	paraphraseOllama  = "ollama"
	paraphraseExcerpt = "excerpt"

	eventsNop   = "nop"
	eventsKafka = "kafka"

	// ledgerInMemory keeps the ledger in process memory.
	ledgerInMemory = ":memory:"
)

func newContentSource(provider, target string, seed uint64, log *slog.Logger) (content.Source, error) {
	switch provider {
	case contentWikipedia:
		return wikipedia.New(wikipedia.Config{
			BaseURL: target,
			Seed:    seed,
			Logger:  log,
		})
	case contentStatic:
		if target == "" {
			return nil, fmt.Errorf("static content requires a document file")
		}
		return static.Load(target, seed)
	default:
		return nil, fmt.Errorf("unsupported content provider: %s", provider)
	}
}

func newParaphraser(provider, target, model string, seed uint64) (paraphrase.Generator, error) {
	switch provider {
	case paraphraseOllama:
		return ollama.New(ollama.Config{
			BaseURL: target,
			Model:   model,
		}), nil
	case paraphraseExcerpt:
		return excerpt.New(excerpt.DefaultFraction, seed), nil
	default:
		return nil, fmt.Errorf("unsupported paraphrase provider: %s", provider)
	}
}

func newPublisher(provider string, brokers []string, topic string, log *slog.Logger) (eventstream.Publisher, error) {
	switch provider {
	case "", eventsNop:
		return nop.NewPublisher(log), nil
	case eventsKafka:
		return kafka.NewPublisher(kafka.Config{
			Brokers: brokers,
			Topic:   topic,
			Logger:  log,
		})
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", provider)
	}
}

// ledgerPath resolves the ledger location, defaulting to ledger.db in the
// config directory.
func ledgerPath(configured, dotdir string) string {
	if configured != "" {
		return configured
	}
	return filepath.Join(dotdir, "ledger.db")
}

func newLedger(ctx context.Context, path string) (ledger.Driver, error) {
	if path == ledgerInMemory {
		return inmemory.NewDriver(), nil
	}
	d, err := ledgersqlite.NewDriver(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	return d, nil
}

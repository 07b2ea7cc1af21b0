package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/papercomputeco/vectorvault/pkg/content"
	"github.com/papercomputeco/vectorvault/pkg/ledger"
	"github.com/papercomputeco/vectorvault/pkg/logger"
	"github.com/papercomputeco/vectorvault/pkg/paraphrase"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
)

// ErrNamesExhausted is returned when no unused namespace triple could be
// generated.
var ErrNamesExhausted = errors.New("could not generate a unique namespace")

const (
	uniqueAttempts = 16

	// reuseProbability is the chance a create targets an existing tenant or
	// organization instead of a fresh one.
	reuseProbability = 0.5
)

var nameWords = []string{
	"amber", "basalt", "cedar", "delta", "ember", "fjord", "garnet", "harbor",
	"indigo", "juniper", "kelvin", "lumen", "meadow", "nimbus", "onyx", "prism",
	"quartz", "raven", "sierra", "tundra", "umber", "vertex", "willow", "zephyr",
}

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	Source     content.Source
	Paraphrase paraphrase.Generator
	Ledger     ledger.Driver

	// Categories are drawn from for new namespaces. Empty samples across all
	// content.
	Categories []string

	// TaskSize is the number of documents per create or update.
	TaskSize int

	// MinLen and MaxLen bound the length of each document in runes. Longer
	// documents are truncated to MaxLen.
	MinLen int
	MaxLen int

	// ReplaceProbability is the chance an update uses REPLACE instead of ADD.
	ReplaceProbability float64

	Seed   uint64
	Logger *slog.Logger
}

// Generator builds the requests of an audit cycle from the content source
// and the ledger.
type Generator struct {
	source     content.Source
	paraphrase paraphrase.Generator
	ledger     ledger.Driver
	categories []string
	taskSize   int
	minLen     int
	maxLen     int
	replaceP   float64
	logger     *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a Generator.
func NewGenerator(c GeneratorConfig) *Generator {
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}
	taskSize := c.TaskSize
	if taskSize <= 0 {
		taskSize = 1
	}
	return &Generator{
		source:     c.Source,
		paraphrase: c.Paraphrase,
		ledger:     c.Ledger,
		categories: c.Categories,
		taskSize:   taskSize,
		minLen:     c.MinLen,
		maxLen:     c.MaxLen,
		replaceP:   c.ReplaceProbability,
		logger:     log,
		rng:        rand.New(rand.NewPCG(c.Seed, c.Seed^0x2545f4914f6cdd1d)),
	}
}

// GroundTruth returns a fetcher that yields texts exactly as they were seeded.
func (g *Generator) GroundTruth() content.Fetcher {
	return content.TruncatingFetcher{Fetcher: g.source, MaxLen: g.maxLen}
}

// Batch is a set of documents prepared for seeding.
type Batch struct {
	Category string
	Refs     []string
	Texts    []string
	TotalLen int
}

// Bytes is the ledger storage estimate of the batch.
func (b *Batch) Bytes() int64 {
	return ledger.StorageBytes(b.Texts...)
}

// CreateTask is a create request with the refs of its texts.
type CreateTask struct {
	Request protocol.CreateRequest
	Batch   *Batch
}

// UpdateTask is an update request aimed at a recorded namespace.
type UpdateTask struct {
	Request protocol.UpdateRequest
	Entry   *ledger.Entry
	Batch   *Batch
}

// DeleteTask is a namespace delete aimed at a recorded namespace.
type DeleteTask struct {
	Request protocol.DeleteRequest
	Entry   *ledger.Entry
}

// ReadTask is a paraphrased query whose answer is one recorded page.
type ReadTask struct {
	Request   protocol.ReadRequest
	Entry     *ledger.Entry
	SourceRef string
	Original  string
}

func (g *Generator) float() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

func (g *Generator) intN(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

func (g *Generator) name() string {
	return fmt.Sprintf("%s-%04x", nameWords[g.intN(len(nameWords))], g.intN(0x10000))
}

func (g *Generator) batch(ctx context.Context, category string, exclude map[string]struct{}) (*Batch, error) {
	docs, err := g.source.Sample(ctx, category, g.taskSize, g.minLen, exclude)
	if err != nil {
		return nil, fmt.Errorf("sampling %q: %w", category, err)
	}

	b := &Batch{Category: category}
	for _, d := range docs {
		text := content.Truncate(d.Text, g.maxLen)
		b.Refs = append(b.Refs, d.SourceRef)
		b.Texts = append(b.Texts, text)
		b.TotalLen += utf8.RuneCountInString(text)
	}

	if b.TotalLen < g.taskSize*g.minLen {
		g.logger.Warn("generated task is smaller than requested",
			"category", category,
			"documents", len(docs),
			"total_len", b.TotalLen,
			"want_len", g.taskSize*g.minLen,
		)
	}
	return b, nil
}

// CreateTask builds a create request for a namespace triple the operator's
// ledger has not seen. Half of the time it reuses a recorded tenant, and then
// possibly a recorded organization, so hierarchies grow deeper than one
// namespace.
func (g *Generator) CreateTask(ctx context.Context, operator string) (*CreateTask, error) {
	entries, err := g.ledger.Entries(ctx, operator)
	if err != nil {
		return nil, err
	}

	var tenant, organization, namespace string
	for range uniqueAttempts {
		tenant, organization = g.name(), g.name()
		if len(entries) > 0 && g.float() < reuseProbability {
			e := entries[g.intN(len(entries))]
			tenant = e.TenantName
			if g.float() < reuseProbability {
				organization = e.OrganizationName
			}
		}
		namespace = g.name()

		unique, err := g.ledger.CheckUniqueness(ctx, operator, tenant, organization, namespace)
		if err != nil {
			return nil, err
		}
		if unique {
			break
		}
		namespace = ""
	}
	if namespace == "" {
		return nil, ErrNamesExhausted
	}

	category := ""
	if len(g.categories) > 0 {
		category = g.categories[g.intN(len(g.categories))]
	}

	b, err := g.batch(ctx, category, nil)
	if err != nil {
		return nil, err
	}

	return &CreateTask{
		Request: protocol.CreateRequest{
			Version:          protocol.CurrentVersion,
			TenantName:       tenant,
			OrganizationName: organization,
			NamespaceName:    namespace,
			Category:         category,
			Texts:            b.Texts,
		},
		Batch: b,
	}, nil
}

// UpdateTask targets a random recorded namespace with more documents from its
// category. It returns nil when the operator has nothing recorded.
func (g *Generator) UpdateTask(ctx context.Context, operator string) (*UpdateTask, error) {
	entry, err := g.sample(ctx, operator)
	if err != nil || entry == nil {
		return nil, err
	}

	mode := protocol.UpdateAdd
	exclude := make(map[string]struct{}, entry.Pages.Len())
	if g.float() < g.replaceP {
		mode = protocol.UpdateReplace
	} else {
		for _, ref := range entry.Pages.Refs() {
			exclude[ref] = struct{}{}
		}
	}

	b, err := g.batch(ctx, entry.Category, exclude)
	if err != nil {
		return nil, err
	}

	return &UpdateTask{
		Request: protocol.UpdateRequest{
			Version:          protocol.CurrentVersion,
			Mode:             mode,
			TenantName:       entry.TenantName,
			OrganizationName: entry.OrganizationName,
			NamespaceName:    entry.NamespaceName,
			Texts:            b.Texts,
		},
		Entry: entry,
		Batch: b,
	}, nil
}

// DeleteTask targets a random recorded namespace. It returns nil when the
// operator has nothing recorded.
func (g *Generator) DeleteTask(ctx context.Context, operator string) (*DeleteTask, error) {
	entry, err := g.sample(ctx, operator)
	if err != nil || entry == nil {
		return nil, err
	}

	return &DeleteTask{
		Request: protocol.DeleteRequest{
			Version:          protocol.CurrentVersion,
			Scope:            protocol.ScopeNamespace,
			TenantName:       entry.TenantName,
			OrganizationName: entry.OrganizationName,
			NamespaceName:    entry.NamespaceName,
		},
		Entry: entry,
	}, nil
}

// ReadTask picks a recorded page, re-fetches its text and paraphrases it into
// a query. It returns nil when the operator has no recorded pages.
func (g *Generator) ReadTask(ctx context.Context, operator string) (*ReadTask, error) {
	entries, err := g.ledger.Entries(ctx, operator)
	if err != nil {
		return nil, err
	}

	var candidates []*ledger.Entry
	for _, e := range entries {
		if e.Pages.Len() > 0 {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	entry := candidates[g.intN(len(candidates))]
	refs := entry.Pages.Refs()
	ref := refs[g.intN(len(refs))]

	original, err := g.GroundTruth().Fetch(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", ref, err)
	}

	query, err := g.paraphrase.Paraphrase(ctx, original)
	if err != nil {
		return nil, err
	}

	return &ReadTask{
		Request: protocol.ReadRequest{
			Version:          protocol.CurrentVersion,
			TenantName:       entry.TenantName,
			OrganizationName: entry.OrganizationName,
			NamespaceName:    entry.NamespaceName,
			QueryText:        strings.TrimSpace(query),
			ResultCount:      1,
		},
		Entry:     entry,
		SourceRef: ref,
		Original:  original,
	}, nil
}

func (g *Generator) sample(ctx context.Context, operator string) (*ledger.Entry, error) {
	g.mu.Lock()
	seed := g.rng.Uint64()
	g.mu.Unlock()
	return ledger.SampleEntry(ctx, g.ledger, operator, rand.New(rand.NewPCG(seed, seed)))
}

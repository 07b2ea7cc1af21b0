// Package static provides a content source backed by a document set loaded
// from memory or from a JSON file. It serves offline runs and tests.
package static

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/vectorvault/pkg/content"
	"github.com/papercomputeco/vectorvault/pkg/vault"
)

// Source serves documents from a set that only grows. Once a source ref is
// known its text never changes, so ledger ground truth stays valid.
type Source struct {
	mu   sync.Mutex
	docs []content.Document
	byID map[string]content.Document
	rng  *rand.Rand
}

// New creates a Source over docs. seed drives sampling.
func New(docs []content.Document, seed uint64) *Source {
	s := &Source{
		docs: docs,
		byID: make(map[string]content.Document, len(docs)),
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	for _, d := range docs {
		s.byID[d.SourceRef] = d
	}
	return s
}

type fileDocument struct {
	SourceRef string `json:"source_ref"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Text      string `json:"text"`
}

// Load reads a JSON array of documents from path.
func Load(path string, seed uint64) (*Source, error) {
	docs, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return New(docs, seed), nil
}

func readFile(path string) ([]content.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}

	var raw []fileDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing documents %s: %w", path, err)
	}

	docs := make([]content.Document, 0, len(raw))
	for _, d := range raw {
		docs = append(docs, content.Document(d))
	}
	return docs, nil
}

// Merge adds documents whose source refs are new and returns how many were
// added. Known refs keep their original text.
func (s *Source) Merge(docs []content.Document) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, d := range docs {
		if _, ok := s.byID[d.SourceRef]; ok {
			continue
		}
		s.byID[d.SourceRef] = d
		s.docs = append(s.docs, d)
		added++
	}
	return added
}

// Watch merges path into the source whenever it is written, until ctx is
// done. A file that fails to parse is skipped and reported through onError,
// which may be nil.
func (s *Source) Watch(ctx context.Context, path string, onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating document watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching document dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			docs, err := readFile(path)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			s.Merge(docs)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("document watcher error: %w", err)
		}
	}
}

func (s *Source) Fetch(_ context.Context, sourceRef string) (string, error) {
	s.mu.Lock()
	d, ok := s.byID[sourceRef]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("document %s: %w", sourceRef, vault.ErrNotFound)
	}
	return d.Text, nil
}

func (s *Source) Sample(_ context.Context, category string, n, minLen int, exclude map[string]struct{}) ([]content.Document, error) {
	s.mu.Lock()
	docs := s.docs
	s.mu.Unlock()

	var pool []content.Document
	for _, d := range docs {
		if category != "" && d.Category != category {
			continue
		}
		if _, skip := exclude[d.SourceRef]; skip {
			continue
		}
		if utf8.RuneCountInString(d.Text) < minLen {
			continue
		}
		pool = append(pool, d)
	}
	if len(pool) == 0 {
		return nil, content.ErrNoDocuments
	}

	s.mu.Lock()
	s.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	s.mu.Unlock()

	if n < len(pool) {
		pool = pool[:n]
	}
	return pool, nil
}

func (s *Source) Close() error {
	return nil
}

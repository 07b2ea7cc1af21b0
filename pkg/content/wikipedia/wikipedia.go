// Package wikipedia implements pkg/content's Source over the MediaWiki action
// API. Documents are plain-text page extracts keyed by page id.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/papercomputeco/vectorvault/pkg/content"
	"github.com/papercomputeco/vectorvault/pkg/logger"
	"github.com/papercomputeco/vectorvault/pkg/vault"
)

const (
	// DefaultBaseURL is the English Wikipedia API endpoint.
	DefaultBaseURL = "https://en.wikipedia.org/w/api.php"

	// userAgent is required by the Wikimedia API etiquette.
	userAgent = "vectorvault/1.0 (https://github.com/papercomputeco/vectorvault)"

	// maxMembers caps a single categorymembers page.
	maxMembers = 500
)

var (
	spaceRun   = regexp.MustCompile(`\s+`)
	strippedCh = regexp.MustCompile(`['"\\\n]`)
)

// Config configures a Source.
type Config struct {
	// BaseURL is the api.php endpoint. Defaults to DefaultBaseURL.
	BaseURL string

	// Seed drives candidate shuffling.
	Seed uint64

	Logger *slog.Logger
}

// Source fetches documents from a MediaWiki instance.
type Source struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Source.
func New(cfg Config) (*Source, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid wikipedia url %q: %w", baseURL, err)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Source{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d)),
	}, nil
}

// Clean normalizes an extract: whitespace runs become one space, quotes,
// backslashes and newlines are removed.
func Clean(text string) string {
	text = spaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(strippedCh.ReplaceAllString(text, ""))
}

type page struct {
	PageID  int64   `json:"pageid"`
	Title   string  `json:"title"`
	Extract string  `json:"extract"`
	Missing *string `json:"missing,omitempty"`
}

type queryResponse struct {
	Query struct {
		CategoryMembers []page          `json:"categorymembers"`
		Random          []page          `json:"random"`
		Pages           map[string]page `json:"pages"`
	} `json:"query"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// Fetch returns the cleaned extract of the page whose id is sourceRef.
func (s *Source) Fetch(ctx context.Context, sourceRef string) (string, error) {
	if _, err := strconv.ParseInt(sourceRef, 10, 64); err != nil {
		return "", fmt.Errorf("page id %q: %w", sourceRef, vault.ErrMalformed)
	}

	p, err := s.extract(ctx, sourceRef)
	if err != nil {
		return "", err
	}
	return Clean(p.Extract), nil
}

// Sample lists pages in category, or random main-namespace pages when
// category is empty, and returns up to n extracts of at least minLen runes.
func (s *Source) Sample(ctx context.Context, category string, n, minLen int, exclude map[string]struct{}) ([]content.Document, error) {
	if n <= 0 {
		return []content.Document{}, nil
	}

	candidates, err := s.candidates(ctx, category, n)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	s.mu.Unlock()

	docs := make([]content.Document, 0, n)
	for _, c := range candidates {
		if len(docs) == n {
			break
		}

		ref := strconv.FormatInt(c.PageID, 10)
		if _, skip := exclude[ref]; skip {
			continue
		}

		p, err := s.extract(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Debug("skipping page", "page_id", ref, "error", err)
			continue
		}

		text := Clean(p.Extract)
		if utf8.RuneCountInString(text) < minLen {
			continue
		}

		docs = append(docs, content.Document{
			SourceRef: ref,
			Title:     p.Title,
			Category:  category,
			Text:      text,
		})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("category %q: %w", category, content.ErrNoDocuments)
	}

	s.logger.Debug("sampled wikipedia pages",
		"category", category,
		"requested", n,
		"returned", len(docs),
	)
	return docs, nil
}

func (s *Source) candidates(ctx context.Context, category string, n int) ([]page, error) {
	limit := min(max(n*4, 20), maxMembers)

	params := url.Values{}
	if category == "" {
		params.Set("list", "random")
		params.Set("rnnamespace", "0")
		params.Set("rnlimit", strconv.Itoa(limit))
	} else {
		params.Set("list", "categorymembers")
		params.Set("cmtitle", "Category:"+category)
		params.Set("cmnamespace", "0")
		params.Set("cmtype", "page")
		params.Set("cmlimit", strconv.Itoa(limit))
	}

	resp, err := s.query(ctx, params)
	if err != nil {
		return nil, err
	}

	if category == "" {
		return resp.Query.Random, nil
	}
	return resp.Query.CategoryMembers, nil
}

func (s *Source) extract(ctx context.Context, ref string) (page, error) {
	params := url.Values{}
	params.Set("prop", "extracts")
	params.Set("explaintext", "1")
	params.Set("exsectionformat", "plain")
	params.Set("pageids", ref)

	resp, err := s.query(ctx, params)
	if err != nil {
		return page{}, err
	}

	p, ok := resp.Query.Pages[ref]
	if !ok || p.Missing != nil {
		return page{}, fmt.Errorf("page %s: %w", ref, vault.ErrNotFound)
	}
	return p, nil
}

func (s *Source) query(ctx context.Context, params url.Values) (*queryResponse, error) {
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("formatversion", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying wikipedia: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("wikipedia returned status %d: %s", resp.StatusCode, string(body))
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding wikipedia response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("wikipedia error %s: %s", out.Error.Code, out.Error.Info)
	}
	return &out, nil
}

func (s *Source) Close() error {
	return nil
}

var _ content.Source = (*Source)(nil)

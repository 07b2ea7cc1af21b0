// Package ollama implements pkg/paraphrase's Generator with an Ollama chat model.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/vectorvault/pkg/paraphrase"
)

const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "llama3.2"

	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"

	defaultTemperature = 1.0

	systemPrompt = "You write search queries for evaluating embedding engines. " +
		"Summarize the document you are given in 700 to 900 characters. " +
		"Reply with the summary only, as plain text on a single line, without quotes."
)

// Config holds configuration for the Ollama generator.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Model defaults to DefaultModel.
	Model string

	// Temperature defaults to 1.0. Higher values drift further from the source.
	Temperature float64
}

// Generator paraphrases documents with Ollama's chat API.
type Generator struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// New creates a Generator.
func New(cfg Config) *Generator {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	return &Generator{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		model:       model,
		temperature: temperature,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Paraphrase asks the model for a single-line summary of text.
func (g *Generator) Paraphrase(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		Options: chatOptions{Temperature: g.temperature},
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %v", paraphrase.ErrParaphrase, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %v", paraphrase.ErrParaphrase, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: sending request: %v", paraphrase.ErrParaphrase, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: ollama returned status %d: %s", paraphrase.ErrParaphrase, resp.StatusCode, string(msg))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", paraphrase.ErrParaphrase, err)
	}

	query := strings.Join(strings.Fields(out.Message.Content), " ")
	if query == "" {
		return "", fmt.Errorf("%w: empty completion", paraphrase.ErrParaphrase)
	}
	return query, nil
}

func (g *Generator) Close() error {
	return nil
}

var _ paraphrase.Generator = (*Generator)(nil)

package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/vectorvault/pkg/search"
	"github.com/papercomputeco/vectorvault/pkg/utils"
)

const previewLen = 200

var (
	searchToolName    = "namespace_search"
	searchDescription = "Search one namespace of a coordinator's store using semantic search. Returns the most similar stored texts ranked by cosine similarity."
)

// SearchInput represents the input arguments for the search tool.
type SearchInput struct {
	Coordinator  string `json:"coordinator" jsonschema:"the coordinator identity whose store is searched"`
	Tenant       string `json:"tenant" jsonschema:"the tenant name"`
	Organization string `json:"organization" jsonschema:"the organization name"`
	Namespace    string `json:"namespace" jsonschema:"the namespace name"`
	Query        string `json:"query" jsonschema:"the search query text"`
	TopK         int    `json:"top_k,omitempty" jsonschema:"number of results to return (default: 5)"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	VectorID int64   `json:"vector_id"`
	Score    float64 `json:"score"`
	Preview  string  `json:"preview"`
}

// SearchOutput represents the output of the search tool.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// handleSearch processes a search request.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	topK := input.TopK
	if topK <= 0 {
		topK = 5
	}

	logger.Debug("MCP search request",
		"coordinator", input.Coordinator,
		"namespace", input.Namespace,
		"query", input.Query,
		"top_k", topK,
	)

	if input.Coordinator == "" || input.Tenant == "" || input.Organization == "" || input.Namespace == "" || input.Query == "" {
		return toolError("coordinator, tenant, organization, namespace and query are required"), SearchOutput{}, nil
	}

	store, release, err := s.config.Stores.Acquire(ctx, input.Coordinator)
	if err != nil {
		logger.Error("failed to open store", "coordinator", input.Coordinator, "error", err)
		return toolError("Failed to open store: %v", err), SearchOutput{}, nil
	}
	defer release() //nolint:errcheck

	results, err := s.config.Engine.Search(ctx, store, input.Tenant, input.Organization, input.Namespace, input.Query, topK)
	if err != nil {
		logger.Debug("search failed", "error", err)
		return toolError("Failed to search namespace: %v", err), SearchOutput{}, nil
	}

	output := buildSearchOutput(input.Query, results)

	// Tools returning structured content also return serialized JSON in a
	// TextContent block for backwards compatibility
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal search output", "error", err)
		return toolError("Failed to serialize results: %v", err), SearchOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

// buildSearchOutput converts ranked results into tool output with text
// previews.
func buildSearchOutput(query string, results []search.Result) SearchOutput {
	out := SearchOutput{
		Query:   query,
		Results: make([]SearchResult, 0, len(results)),
	}
	for _, r := range results {
		out.Results = append(out.Results, SearchResult{
			VectorID: r.VectorID,
			Score:    r.Score,
			Preview:  utils.Truncate(r.Text, previewLen),
		})
	}
	out.Count = len(out.Results)
	return out
}

// Package api provides the operator's HTTP server: the four CRUD endpoints
// the coordinator calls, a namespace search endpoint and the MCP surface.
package api

import "net/http"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8091")
	ListenAddr string

	// IdentityHeader names the header carrying the coordinator identity.
	// Defaults to transport.DefaultIdentityHeader.
	IdentityHeader string

	// MCPHandler, when set, is mounted at /mcp.
	MCPHandler http.Handler
}

package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/vectorvault/pkg/logger"
	"github.com/papercomputeco/vectorvault/pkg/metrics"
	"github.com/papercomputeco/vectorvault/pkg/operator"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
	"github.com/papercomputeco/vectorvault/pkg/transport"
)

// Server is the operator's API server. Each request is served from the store
// of the coordinator named in the identity header.
type Server struct {
	config Config
	engine *operator.Engine
	stores *operator.Stores
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The stores are injected so they can be shared with the MCP server.
func NewServer(config Config, engine *operator.Engine, stores *operator.Stores, log *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if stores == nil {
		return nil, errors.New("stores are required")
	}
	if log == nil {
		log = logger.Nop()
	}
	if config.IdentityHeader == "" {
		config.IdentityHeader = transport.DefaultIdentityHeader
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		engine: engine,
		stores: stores,
		logger: log,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	app.Post(transport.Path(protocol.OpCreate), s.handleCreate)
	app.Post(transport.Path(protocol.OpRead), s.handleRead)
	app.Post(transport.Path(protocol.OpUpdate), s.handleUpdate)
	app.Post(transport.Path(protocol.OpDelete), s.handleDelete)
	app.Get("/v1/search", s.handleSearch)

	if config.MCPHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCPHandler))
	}

	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

package coordinator

import (
	"errors"
	"log/slog"
	"net/url"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/vectorvault/pkg/ledger"
	"github.com/papercomputeco/vectorvault/pkg/logger"
	"github.com/papercomputeco/vectorvault/pkg/metrics"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
	"github.com/papercomputeco/vectorvault/pkg/reward"
	"github.com/papercomputeco/vectorvault/pkg/vault"
)

// OperatorStatus is the status view of one operator's ledger.
type OperatorStatus struct {
	ledger.Stats
	Tier   string  `json:"tier"`
	Weight float64 `json:"weight"`
}

// StatusServer exposes the ledger read-only over HTTP.
type StatusServer struct {
	ledger ledger.Driver
	logger *slog.Logger
	app    *fiber.App
}

// NewStatusServer creates a StatusServer.
func NewStatusServer(d ledger.Driver, log *slog.Logger) *StatusServer {
	if log == nil {
		log = logger.Nop()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &StatusServer{
		ledger: d,
		logger: log,
		app:    app,
	}

	app.Get("/ping", func(c *fiber.Ctx) error { return c.JSON("pong") })
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	app.Get("/ledger", s.handleList)
	app.Get("/ledger/:operator", s.handleOperator)
	app.Get("/ledger/:operator/entries", s.handleEntries)

	return s
}

// App returns the underlying fiber app, for tests.
func (s *StatusServer) App() *fiber.App {
	return s.app
}

// Run serves on addr until Shutdown.
func (s *StatusServer) Run(addr string) error {
	s.logger.Info("starting status server", "listen", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *StatusServer) Shutdown() error {
	return s.app.Shutdown()
}

func (s *StatusServer) status(c *fiber.Ctx, operator string) (*OperatorStatus, error) {
	stats, err := ledger.GetStats(c.Context(), s.ledger, operator)
	if err != nil {
		return nil, err
	}
	tier := reward.TierFor(stats.PassedCycles)
	return &OperatorStatus{Stats: *stats, Tier: tier.Name, Weight: tier.Weight}, nil
}

func (s *StatusServer) handleList(c *fiber.Ctx) error {
	operators, err := s.ledger.Operators(c.Context())
	if err != nil {
		s.logger.Error("listing operators", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(protocol.ErrorResponse{Error: "failed to list operators"})
	}

	out := make([]*OperatorStatus, 0, len(operators))
	for _, op := range operators {
		st, err := s.status(c, op)
		if err != nil {
			s.logger.Error("loading operator stats", "operator", op, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(protocol.ErrorResponse{Error: "failed to load stats"})
		}
		out = append(out, st)
	}
	return c.JSON(out)
}

func (s *StatusServer) operatorParam(c *fiber.Ctx) (string, error) {
	return url.PathUnescape(c.Params("operator"))
}

func (s *StatusServer) handleOperator(c *fiber.Ctx) error {
	operator, err := s.operatorParam(c)
	if err != nil || operator == "" {
		return c.Status(fiber.StatusBadRequest).JSON(protocol.ErrorResponse{Error: "operator parameter required"})
	}

	known, err := s.known(c, operator)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(protocol.ErrorResponse{Error: "failed to list operators"})
	}
	if !known {
		return c.Status(fiber.StatusNotFound).JSON(protocol.ErrorResponse{Error: "operator not found"})
	}

	st, err := s.status(c, operator)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(protocol.ErrorResponse{Error: "failed to load stats"})
	}
	return c.JSON(st)
}

func (s *StatusServer) handleEntries(c *fiber.Ctx) error {
	operator, err := s.operatorParam(c)
	if err != nil || operator == "" {
		return c.Status(fiber.StatusBadRequest).JSON(protocol.ErrorResponse{Error: "operator parameter required"})
	}

	entries, err := s.ledger.Entries(c.Context(), operator)
	switch {
	case errors.Is(err, vault.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(protocol.ErrorResponse{Error: "operator not found"})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(protocol.ErrorResponse{Error: "failed to load entries"})
	}
	return c.JSON(entries)
}

func (s *StatusServer) known(c *fiber.Ctx, operator string) (bool, error) {
	operators, err := s.ledger.Operators(c.Context())
	if err != nil {
		return false, err
	}
	for _, op := range operators {
		if op == operator {
			return true, nil
		}
	}
	return false, nil
}

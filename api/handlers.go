package api

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/vectorvault/pkg/metrics"
	"github.com/papercomputeco/vectorvault/pkg/operator"
	"github.com/papercomputeco/vectorvault/pkg/protocol"
	"github.com/papercomputeco/vectorvault/pkg/search"
	"github.com/papercomputeco/vectorvault/pkg/transport"
	"github.com/papercomputeco/vectorvault/pkg/vault"
)

// SearchResponse is the body of GET /v1/search.
type SearchResponse struct {
	IDs     protocol.IDs    `json:"ids"`
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func (s *Server) handleCreate(c *fiber.Ctx) error {
	return serve(s, c, protocol.OpCreate, s.engine.Create)
}

func (s *Server) handleRead(c *fiber.Ctx) error {
	return serve(s, c, protocol.OpRead, s.engine.Read)
}

func (s *Server) handleUpdate(c *fiber.Ctx) error {
	return serve(s, c, protocol.OpUpdate, s.engine.Update)
}

func (s *Server) handleDelete(c *fiber.Ctx) error {
	return serve(s, c, protocol.OpDelete, s.engine.Delete)
}

// serve decodes a request, runs it against the caller's store and writes the
// positional response or a mapped error.
func serve[Req, Resp any](
	s *Server,
	c *fiber.Ctx,
	kind protocol.OpKind,
	fn func(context.Context, *operator.Store, Req) (*Resp, error),
) error {
	start := time.Now()
	status := fiber.StatusOK
	defer func() {
		metrics.ObserveOperatorRequest(kind.String(), status, time.Since(start))
	}()

	identity := c.Get(s.config.IdentityHeader)
	log := s.logger.With(
		"op", kind.String(),
		"coordinator", identity,
		"request_id", c.Get(transport.RequestIDHeader),
	)

	if identity == "" {
		status = fiber.StatusBadRequest
		return c.Status(status).JSON(protocol.ErrorResponse{Error: s.config.IdentityHeader + " header is required"})
	}

	var req Req
	if err := c.BodyParser(&req); err != nil {
		status = fiber.StatusBadRequest
		return c.Status(status).JSON(protocol.ErrorResponse{Error: "invalid request body: " + err.Error()})
	}

	store, release, err := s.stores.Acquire(c.UserContext(), identity)
	if err != nil {
		log.Error("failed to open store", "error", err)
		status = fiber.StatusInternalServerError
		return c.Status(status).JSON(protocol.ErrorResponse{Error: "failed to open store"})
	}
	defer func() {
		if err := release(); err != nil {
			log.Warn("failed to release store", "error", err)
		}
	}()

	resp, err := fn(c.UserContext(), store, req)
	if err != nil {
		status = statusFor(err)
		if status == fiber.StatusInternalServerError {
			log.Error("request failed", "error", err)
		} else {
			log.Debug("request rejected", "status", status, "error", err)
		}
		return c.Status(status).JSON(protocol.ErrorResponse{Error: err.Error()})
	}

	log.Debug("request served", "elapsed", time.Since(start).String())
	return c.JSON(resp)
}

// handleSearch ranks a namespace against a free-text query.
// Query parameters:
//   - tenant, organization, namespace (required): the namespace triple
//   - query (required): the search query text
//   - top_k (optional, default 5): number of results to return
func (s *Server) handleSearch(c *fiber.Ctx) error {
	identity := c.Get(s.config.IdentityHeader)
	if identity == "" {
		return c.Status(fiber.StatusBadRequest).JSON(protocol.ErrorResponse{Error: s.config.IdentityHeader + " header is required"})
	}

	tenant, organization, namespace := c.Query("tenant"), c.Query("organization"), c.Query("namespace")
	if tenant == "" || organization == "" || namespace == "" {
		return c.Status(fiber.StatusBadRequest).JSON(protocol.ErrorResponse{
			Error: "tenant, organization and namespace parameters are required",
		})
	}

	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(protocol.ErrorResponse{
			Error: "query parameter is required",
		})
	}

	topK := 5
	if topKStr := c.Query("top_k"); topKStr != "" {
		parsed, err := strconv.Atoi(topKStr)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(protocol.ErrorResponse{
				Error: "top_k must be a positive integer",
			})
		}
		topK = parsed
	}

	store, release, err := s.stores.Acquire(c.UserContext(), identity)
	if err != nil {
		s.logger.Error("failed to open store", "coordinator", identity, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(protocol.ErrorResponse{Error: "failed to open store"})
	}
	defer release() //nolint:errcheck

	ids, results, err := s.engine.SearchIDs(c.UserContext(), store, tenant, organization, namespace, query, topK)
	if err != nil {
		return c.Status(statusFor(err)).JSON(protocol.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(SearchResponse{
		IDs:     ids,
		Query:   query,
		Results: results,
		Count:   len(results),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, vault.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, vault.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, vault.ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, vault.ErrTimeout):
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusInternalServerError
}

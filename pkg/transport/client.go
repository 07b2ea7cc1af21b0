// Package transport carries coordinator requests to an operator over HTTP.
// Every request is stamped with the coordinator identity so the operator can
// select that coordinator's store.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/papercomputeco/vectorvault/pkg/protocol"
	"github.com/papercomputeco/vectorvault/pkg/vault"
)

const (
	// DefaultIdentityHeader carries the coordinator identity.
	DefaultIdentityHeader = "X-Vault-Coordinator"

	// RequestIDHeader correlates coordinator and operator logs.
	RequestIDHeader = "X-Request-ID"
)

// Path returns the operator endpoint for kind.
func Path(kind protocol.OpKind) string {
	return "/v1/" + kind.String()
}

// Config configures a Client.
type Config struct {
	// BaseURL is the operator's address, e.g. "http://operator-a:8091".
	BaseURL string

	// Identity is sent in IdentityHeader on every request.
	Identity string

	// IdentityHeader defaults to DefaultIdentityHeader.
	IdentityHeader string

	// HTTPClient defaults to a client without a timeout; per-operation
	// deadlines come from the request context.
	HTTPClient *http.Client
}

// Client talks to one operator.
type Client struct {
	baseURL        string
	identity       string
	identityHeader string
	httpClient     *http.Client
}

// NewClient creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("operator url is required")
	}
	if cfg.Identity == "" {
		return nil, errors.New("coordinator identity is required")
	}

	header := cfg.IdentityHeader
	if header == "" {
		header = DefaultIdentityHeader
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		identity:       cfg.Identity,
		identityHeader: header,
		httpClient:     httpClient,
	}, nil
}

// Endpoint returns the operator base URL.
func (c *Client) Endpoint() string {
	return c.baseURL
}

func (c *Client) Create(ctx context.Context, req protocol.CreateRequest) (*protocol.CreateResponse, error) {
	var resp protocol.CreateResponse
	if err := c.do(ctx, protocol.OpCreate, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Read(ctx context.Context, req protocol.ReadRequest) (*protocol.ReadResponse, error) {
	var resp protocol.ReadResponse
	if err := c.do(ctx, protocol.OpRead, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Update(ctx context.Context, req protocol.UpdateRequest) (*protocol.UpdateResponse, error) {
	var resp protocol.UpdateResponse
	if err := c.do(ctx, protocol.OpUpdate, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Delete(ctx context.Context, req protocol.DeleteRequest) (*protocol.DeleteResponse, error) {
	var resp protocol.DeleteResponse
	if err := c.do(ctx, protocol.OpDelete, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping checks that the operator is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping %s: status %d", c.baseURL, resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, kind protocol.OpKind, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+Path(kind), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", kind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(c.identityHeader, c.identity)
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(kind, resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		if errors.Is(err, vault.ErrMalformed) {
			return err
		}
		return fmt.Errorf("%w: %s response: %w", vault.ErrMalformed, kind, err)
	}
	return nil
}

// classify turns transport failures caused by the context deadline into
// vault.ErrTimeout.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", vault.ErrTimeout, err)
	}
	return fmt.Errorf("sending request: %w", err)
}

func statusError(kind protocol.OpKind, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var e protocol.ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}

	var sentinel error
	switch status {
	case http.StatusNotFound:
		sentinel = vault.ErrNotFound
	case http.StatusConflict:
		sentinel = vault.ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		sentinel = vault.ErrInvalidRequest
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		sentinel = vault.ErrTimeout
	default:
		return fmt.Errorf("%s: operator returned status %d: %s", kind, status, msg)
	}
	return fmt.Errorf("%s: %w: %s", kind, sentinel, msg)
}

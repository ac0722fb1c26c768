// Package llamastack is a thin REST client for the llama-stack API.
package llamastack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/astro-web3/ai-virtual-assistant/internal/domain/auth"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/serviceaccount"
	httpclient "github.com/astro-web3/ai-virtual-assistant/pkg/http"
	"github.com/go-resty/resty/v2"
)

// ProviderMCP is the tool runtime provider id of toolgroups backed by an MCP server.
const ProviderMCP = "model-context-protocol"

var ErrUnexpectedStatus = errors.New("llama-stack returned an unexpected status")

type Endpoint struct {
	URI string `json:"uri"`
}

type ToolGroup struct {
	Identifier  string    `json:"identifier"`
	ProviderID  string    `json:"provider_id"`
	MCPEndpoint *Endpoint `json:"mcp_endpoint,omitempty"`
}

type Model struct {
	Identifier string         `json:"identifier"`
	ProviderID string         `json:"provider_id"`
	ModelType  string         `json:"model_type"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type VectorDB struct {
	Identifier         string `json:"identifier"`
	ProviderID         string `json:"provider_id"`
	EmbeddingModel     string `json:"embedding_model"`
	EmbeddingDimension int    `json:"embedding_dimension"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

// Client calls llama-stack with a fixed header set: the bearer token plus
// whatever forwarded identity it was built for.
type Client struct {
	baseURL string
	headers map[string]string
}

func NewClient(baseURL string, headers map[string]string) *Client {
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: h,
	}
}

func (c *Client) ListToolGroups(ctx context.Context) ([]ToolGroup, error) {
	var out listResponse[ToolGroup]
	if err := c.get(ctx, "/v1/toolgroups", &out); err != nil {
		return nil, fmt.Errorf("listing toolgroups: %w", err)
	}
	return out.Data, nil
}

func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var out listResponse[Model]
	if err := c.get(ctx, "/v1/models", &out); err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	return out.Data, nil
}

func (c *Client) ListVectorDBs(ctx context.Context) ([]VectorDB, error) {
	var out listResponse[VectorDB]
	if err := c.get(ctx, "/v1/vector-dbs", &out); err != nil {
		return nil, fmt.Errorf("listing vector dbs: %w", err)
	}
	return out.Data, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	resp, err := httpclient.Get(ctx, c.baseURL+path,
		httpclient.WithHeaders(c.headers),
		httpclient.WithResult(result),
	)
	return checkResponse(resp, err)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	resp, err := httpclient.Post(ctx, c.baseURL+path,
		httpclient.WithHeaders(c.headers),
		httpclient.WithJSONBody(body),
		httpclient.WithResult(result),
	)
	return checkResponse(resp, err)
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status())
	}
	return nil
}

// Factory builds clients authenticated with the pod's service-account token.
type Factory struct {
	baseURL       string
	adminUsername string
	tokens        serviceaccount.Source
}

func NewFactory(baseURL, adminUsername string, tokens serviceaccount.Source) *Factory {
	return &Factory{
		baseURL:       baseURL,
		adminUsername: adminUsername,
		tokens:        tokens,
	}
}

// ForRequest returns a client acting for the user identified by the
// forwarded headers of an inbound request.
func (f *Factory) ForRequest(ctx context.Context, h http.Header) *Client {
	token := f.tokens.Token(ctx)
	return NewClient(f.baseURL, auth.OutboundHeaders(token.Token, auth.ForwardedIdentityFromHeader(h)))
}

// Sync returns the client used by background sync routines. It acts as the
// admin user and reads the service-account token on every call, so a token
// mounted or rotated after startup is picked up.
func (f *Factory) Sync(ctx context.Context) *Client {
	forwarded := map[string]string{}
	if f.adminUsername != "" {
		forwarded[auth.HeaderForwardedUser] = f.adminUsername
	}
	token := f.tokens.Token(ctx)
	return NewClient(f.baseURL, auth.OutboundHeaders(token.Token, forwarded))
}

// SyncSource lists inventories through a fresh admin sync client per call.
func (f *Factory) SyncSource() *SyncSource {
	return &SyncSource{factory: f}
}

type SyncSource struct {
	factory *Factory
}

func (s *SyncSource) ListToolGroups(ctx context.Context) ([]ToolGroup, error) {
	return s.factory.Sync(ctx).ListToolGroups(ctx)
}

func (s *SyncSource) ListModels(ctx context.Context) ([]Model, error) {
	return s.factory.Sync(ctx).ListModels(ctx)
}

func (s *SyncSource) ListVectorDBs(ctx context.Context) ([]VectorDB, error) {
	return s.factory.Sync(ctx).ListVectorDBs(ctx)
}

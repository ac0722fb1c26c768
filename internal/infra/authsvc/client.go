// Package authsvc talks to the external authentication microservice.
package authsvc

import (
	"context"
	"fmt"

	"github.com/astro-web3/ai-virtual-assistant/internal/domain/auth"
	httpclient "github.com/astro-web3/ai-virtual-assistant/pkg/http"
)

type Client struct {
	introspectionURL string
	peerURL          string
}

func NewClient(introspectionURL, peerURL string) *Client {
	return &Client{
		introspectionURL: introspectionURL,
		peerURL:          peerURL,
	}
}

var (
	_ auth.TokenIntrospector = (*Client)(nil)
	_ auth.PeerValidator     = (*Client)(nil)
)

// Introspect issues GET introspectionURL with headers. Any HTTP status is a
// successful call; only transport failures are errors.
func (c *Client) Introspect(ctx context.Context, headers map[string]string) (int, error) {
	resp, err := httpclient.Get(ctx, c.introspectionURL, httpclient.WithHeaders(headers))
	if err != nil {
		return 0, fmt.Errorf("token introspection request failed: %w", err)
	}
	return resp.StatusCode(), nil
}

// ValidatePeer posts req as JSON to peerURL and returns the raw reply.
func (c *Client) ValidatePeer(ctx context.Context, req auth.AuthRequest) (int, []byte, error) {
	resp, err := httpclient.Post(ctx, c.peerURL, httpclient.WithJSONBody(req))
	if err != nil {
		return 0, nil, fmt.Errorf("peer authentication request failed: %w", err)
	}
	return resp.StatusCode(), resp.Body(), nil
}

package authsvc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/astro-web3/ai-virtual-assistant/internal/domain/auth"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/authsvc"
	httpclient "github.com/astro-web3/ai-virtual-assistant/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Introspect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/validate-token", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := authsvc.NewClient(srv.URL+"/validate-token", srv.URL+"/validate")

	status, err := c.Introspect(context.Background(), map[string]string{"Authorization": "Bearer good"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	status, err = c.Introspect(context.Background(), map[string]string{"Authorization": "Bearer bad"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestClient_Introspect_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := authsvc.NewClient(srv.URL, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Introspect(ctx, nil)
	require.Error(t, err)
	assert.True(t, httpclient.IsTimeout(err))
}

func TestClient_ValidatePeer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req auth.AuthRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sa", req.APIKey)
		assert.Equal(t, "bob", req.Request.Headers["x-forwarded-user"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"principal":"bob","attributes":{"roles":["user"]}}`))
	}))
	defer srv.Close()

	c := authsvc.NewClient(srv.URL, srv.URL+"/validate")
	h := http.Header{}
	h.Set("X-Forwarded-User", "bob")

	status, body, err := c.ValidatePeer(context.Background(), auth.NewPeerAuthRequest("sa", h))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"principal":"bob","attributes":{"roles":["user"]}}`, string(body))
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := authsvc.NewClient(url, url).Introspect(context.Background(), nil)
	require.Error(t, err)
	assert.False(t, httpclient.IsTimeout(err))
}

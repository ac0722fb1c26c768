package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/astro-web3/ai-virtual-assistant/internal/domain/auth"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/serviceaccount"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockIntrospector struct {
	introspectFunc func(ctx context.Context, headers map[string]string) (int, error)
	calls          int
}

func (m *mockIntrospector) Introspect(ctx context.Context, headers map[string]string) (int, error) {
	m.calls++
	if m.introspectFunc != nil {
		return m.introspectFunc(ctx, headers)
	}
	return http.StatusOK, nil
}

type mockPeer struct {
	validateFunc func(ctx context.Context, req auth.AuthRequest) (int, []byte, error)
}

func (m *mockPeer) ValidatePeer(ctx context.Context, req auth.AuthRequest) (int, []byte, error) {
	return m.validateFunc(ctx, req)
}

type mockUsers struct {
	users map[string]*store.User
	err   error
}

func (m *mockUsers) FindByIdentity(_ context.Context, username, email string) (*store.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	if u, ok := m.users[username]; ok {
		return u, nil
	}
	for _, u := range m.users {
		if email != "" && u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

type memCache struct {
	keys map[string]bool
}

func (m *memCache) Accepted(_ context.Context, key string) (bool, error) {
	return m.keys[key], nil
}

func (m *memCache) Remember(_ context.Context, key string, _ time.Duration) error {
	m.keys[key] = true
	return nil
}

func aliceUsers() *mockUsers {
	return &mockUsers{users: map[string]*store.User{
		"alice": {Username: "alice", Email: "alice@example.com", Role: "admin"},
	}}
}

func aliceRequest() auth.AuthRequest {
	return auth.AuthRequest{
		APIKey: "tok",
		Request: auth.RequestContext{
			Path:    "/v1/agents",
			Headers: map[string]string{"x-forwarded-user": "alice"},
		},
	}
}

func TestService_Validate_Success(t *testing.T) {
	var sent map[string]string
	introspector := &mockIntrospector{introspectFunc: func(_ context.Context, headers map[string]string) (int, error) {
		sent = headers
		return http.StatusOK, nil
	}}
	svc := auth.NewService(introspector, nil, aliceUsers())

	decision, err := svc.Validate(context.Background(), aliceRequest())

	require.NoError(t, err)
	assert.Equal(t, "alice", decision.Principal)
	assert.Equal(t, []string{"admin"}, decision.Attributes["roles"])
	assert.Equal(t, auth.MessageAuthenticated, decision.Message)
	assert.Equal(t, map[string]string{
		"Authorization":    "Bearer tok",
		"X-Forwarded-User": "alice",
	}, sent)
}

func TestService_Validate_IntrospectionRejected(t *testing.T) {
	introspector := &mockIntrospector{introspectFunc: func(context.Context, map[string]string) (int, error) {
		return http.StatusUnauthorized, nil
	}}
	svc := auth.NewService(introspector, nil, aliceUsers())

	_, err := svc.Validate(context.Background(), aliceRequest())

	require.ErrorIs(t, err, auth.ErrUnauthorized)
	assert.NotErrorIs(t, err, auth.ErrUserNotFound)
	var statusErr *auth.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "authentication failed: 401", err.Error())
}

func TestService_Validate_NoLocalUser(t *testing.T) {
	svc := auth.NewService(&mockIntrospector{}, nil, &mockUsers{users: map[string]*store.User{}})

	_, err := svc.Validate(context.Background(), aliceRequest())

	require.ErrorIs(t, err, auth.ErrUserNotFound)
	assert.NotErrorIs(t, err, auth.ErrUnauthorized)
}

func TestService_Validate_Timeout(t *testing.T) {
	introspector := &mockIntrospector{introspectFunc: func(ctx context.Context, _ map[string]string) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}}
	svc := auth.NewService(introspector, nil, aliceUsers(), auth.WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := svc.Validate(context.Background(), aliceRequest())

	require.ErrorIs(t, err, auth.ErrAuthServiceTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestService_Validate_TransportErrorIsWrapped(t *testing.T) {
	introspector := &mockIntrospector{introspectFunc: func(context.Context, map[string]string) (int, error) {
		return 0, errors.New("dial tcp 127.0.0.1:8887: connection refused")
	}}
	svc := auth.NewService(introspector, nil, aliceUsers())

	_, err := svc.Validate(context.Background(), aliceRequest())

	require.ErrorIs(t, err, auth.ErrAuthServiceError)
	assert.NotContains(t, err.Error(), "connection refused")
}

func TestService_Validate_UserLookupError(t *testing.T) {
	svc := auth.NewService(&mockIntrospector{}, nil, &mockUsers{err: errors.New("database is locked")})

	_, err := svc.Validate(context.Background(), aliceRequest())

	require.ErrorIs(t, err, auth.ErrAuthServiceError)
	assert.NotErrorIs(t, err, auth.ErrUserNotFound)
	assert.NotContains(t, err.Error(), "database is locked")
}

func TestService_Validate_CacheSkipsSecondIntrospection(t *testing.T) {
	introspector := &mockIntrospector{}
	svc := auth.NewService(introspector, nil, aliceUsers(),
		auth.WithCache(&memCache{keys: map[string]bool{}}, time.Minute))

	_, err := svc.Validate(context.Background(), aliceRequest())
	require.NoError(t, err)
	_, err = svc.Validate(context.Background(), aliceRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, introspector.calls)
}

func TestService_Validate_RejectionIsNotCached(t *testing.T) {
	introspector := &mockIntrospector{introspectFunc: func(context.Context, map[string]string) (int, error) {
		return http.StatusForbidden, nil
	}}
	svc := auth.NewService(introspector, nil, aliceUsers(),
		auth.WithCache(&memCache{keys: map[string]bool{}}, time.Minute))

	_, _ = svc.Validate(context.Background(), aliceRequest())
	_, _ = svc.Validate(context.Background(), aliceRequest())

	assert.Equal(t, 2, introspector.calls)
}

func TestNewPeerAuthRequest_RoundTrip(t *testing.T) {
	h := http.Header{}
	h["x-forwarded-user"] = []string{"bob"}

	req := auth.NewPeerAuthRequest("sa-token", h)

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded auth.AuthRequest
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, req, decoded)
	assert.Equal(t, "bob", decoded.Request.Headers["x-forwarded-user"])
	assert.Equal(t, "/", decoded.Request.Path)
	assert.NotContains(t, decoded.Request.Headers, "x-forwarded-email")
}

func TestService_SelfTest_Success(t *testing.T) {
	var got auth.AuthRequest
	peer := &mockPeer{validateFunc: func(_ context.Context, req auth.AuthRequest) (int, []byte, error) {
		got = req
		return http.StatusOK, []byte(`{"principal":"alice","attributes":{"roles":["admin"]},"message":"ok"}`), nil
	}}
	svc := auth.NewService(&mockIntrospector{}, peer, aliceUsers(),
		auth.WithTokenSource(serviceaccount.Static("sa-token")))

	h := http.Header{}
	h.Set("X-Forwarded-User", "alice")
	decision, err := svc.SelfTest(context.Background(), h)

	require.NoError(t, err)
	assert.Equal(t, "alice", decision.Principal)
	assert.Equal(t, []string{"admin"}, decision.Attributes["roles"])
	assert.Equal(t, "sa-token", got.APIKey)
	assert.Equal(t, "alice", got.Request.Headers["x-forwarded-user"])
}

func TestService_SelfTest_FailureKinds(t *testing.T) {
	tests := []struct {
		name    string
		peer    func(ctx context.Context, req auth.AuthRequest) (int, []byte, error)
		wantErr error
	}{
		{
			name: "timeout",
			peer: func(ctx context.Context, _ auth.AuthRequest) (int, []byte, error) {
				<-ctx.Done()
				return 0, nil, ctx.Err()
			},
			wantErr: auth.ErrAuthServiceTimeout,
		},
		{
			name: "malformed body",
			peer: func(context.Context, auth.AuthRequest) (int, []byte, error) {
				return http.StatusOK, []byte(`<html>`), nil
			},
			wantErr: auth.ErrInvalidResponseFormat,
		},
		{
			name: "missing principal",
			peer: func(context.Context, auth.AuthRequest) (int, []byte, error) {
				return http.StatusOK, []byte(`{"attributes":{}}`), nil
			},
			wantErr: auth.ErrInvalidResponseFormat,
		},
		{
			name: "service error",
			peer: func(context.Context, auth.AuthRequest) (int, []byte, error) {
				return 0, nil, errors.New("connection reset by peer")
			},
			wantErr: auth.ErrAuthServiceError,
		},
		{
			name: "rejected",
			peer: func(context.Context, auth.AuthRequest) (int, []byte, error) {
				return http.StatusForbidden, []byte(`{"detail":"User not found"}`), nil
			},
			wantErr: auth.ErrUnauthorized,
		},
	}

	all := []error{auth.ErrAuthServiceTimeout, auth.ErrInvalidResponseFormat, auth.ErrAuthServiceError, auth.ErrUnauthorized}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := auth.NewService(&mockIntrospector{}, &mockPeer{validateFunc: tt.peer}, aliceUsers(),
				auth.WithTimeout(20*time.Millisecond))

			_, err := svc.SelfTest(context.Background(), http.Header{})

			require.ErrorIs(t, err, tt.wantErr)
			for _, other := range all {
				if other != tt.wantErr {
					assert.NotErrorIs(t, err, other)
				}
			}
		})
	}
}

func TestService_CurrentUser(t *testing.T) {
	svc := auth.NewService(&mockIntrospector{}, nil, aliceUsers())

	h := http.Header{}
	h.Set("X-Forwarded-Email", "alice@example.com")
	u, err := svc.CurrentUser(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = svc.CurrentUser(context.Background(), http.Header{})
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/astro-web3/ai-virtual-assistant/internal/infra/cache"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/serviceaccount"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/store"
	httpclient "github.com/astro-web3/ai-virtual-assistant/pkg/http"
	"github.com/astro-web3/ai-virtual-assistant/pkg/logger"
	"github.com/astro-web3/ai-virtual-assistant/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultTimeout = 10 * time.Second

// TokenIntrospector asks the external auth service whether the credentials in
// headers are currently valid and returns the HTTP status it answered with.
type TokenIntrospector interface {
	Introspect(ctx context.Context, headers map[string]string) (int, error)
}

// PeerValidator posts an AuthRequest to a peer auth provider and returns its raw reply.
type PeerValidator interface {
	ValidatePeer(ctx context.Context, req AuthRequest) (int, []byte, error)
}

// UserFinder looks up a local account; (nil, nil) means no match.
type UserFinder interface {
	FindByIdentity(ctx context.Context, username, email string) (*store.User, error)
}

type Service interface {
	// Validate authenticates req on behalf of llama-stack.
	Validate(ctx context.Context, req AuthRequest) (*Decision, error)
	// SelfTest plays llama-stack's role against the peer endpoint using the
	// service-account token and the identity forwarded to this request.
	SelfTest(ctx context.Context, forwarded http.Header) (*Decision, error)
	// CurrentUser returns the local account for the forwarded identity.
	CurrentUser(ctx context.Context, forwarded http.Header) (*store.User, error)
}

type Option func(*service)

// WithCache lets successful introspections be reused for ttl.
func WithCache(c cache.IntrospectionCache, ttl time.Duration) Option {
	return func(s *service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithTokenSource(src serviceaccount.Source) Option {
	return func(s *service) {
		s.tokens = src
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

type service struct {
	introspector TokenIntrospector
	peer         PeerValidator
	users        UserFinder
	tokens       serviceaccount.Source
	cache        cache.IntrospectionCache
	cacheTTL     time.Duration
	timeout      time.Duration
}

func NewService(introspector TokenIntrospector, peer PeerValidator, users UserFinder, opts ...Option) Service {
	s := &service{
		introspector: introspector,
		peer:         peer,
		users:        users,
		tokens:       serviceaccount.Static(""),
		cache:        cache.Noop(),
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Validate(ctx context.Context, req AuthRequest) (*Decision, error) {
	ctx, span := tracer.Start(ctx, "domain.auth.Validate")
	defer span.End()

	forwarded := ForwardedIdentityFromMap(req.Request.Headers)
	headers := OutboundHeaders(req.APIKey, forwarded)

	if err := s.introspect(ctx, headers); err != nil {
		tracer.Fail(span, err)
		return nil, err
	}

	user, err := s.users.FindByIdentity(ctx, forwarded[HeaderForwardedUser], forwarded[HeaderForwardedEmail])
	if err != nil {
		logger.ErrorContext(ctx, "error looking up user", logger.Err(err))
		tracer.Fail(span, err)
		return nil, ErrAuthServiceError
	}
	if user == nil {
		logger.WarnContext(ctx, "token accepted but no local user matches",
			slog.String("forwarded_user", forwarded[HeaderForwardedUser]),
			slog.String("forwarded_email", forwarded[HeaderForwardedEmail]),
		)
		span.SetAttributes(attribute.Bool("auth.user_found", false))
		return nil, ErrUserNotFound
	}

	span.SetAttributes(
		attribute.String("auth.principal", user.Username),
		attribute.String("auth.role", user.Role),
	)
	return decisionFor(user), nil
}

func (s *service) introspect(ctx context.Context, headers map[string]string) error {
	key := cache.Key(headers)
	if s.cacheTTL > 0 {
		accepted, err := s.cache.Accepted(ctx, key)
		if err != nil {
			logger.WarnContext(ctx, "introspection cache unavailable, calling auth service", logger.Err(err))
		} else if accepted {
			return nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status, err := s.introspector.Introspect(callCtx, headers)
	if err != nil {
		return classify(ctx, err)
	}
	if status != http.StatusOK {
		logger.InfoContext(ctx, "token introspection rejected", slog.Int("status", status))
		return &StatusError{StatusCode: status}
	}

	if s.cacheTTL > 0 {
		if err := s.cache.Remember(ctx, key, s.cacheTTL); err != nil {
			logger.WarnContext(ctx, "failed to cache introspection result", logger.Err(err))
		}
	}
	return nil
}

// NewPeerAuthRequest builds the request llama-stack would send for a caller
// carrying the forwarded identity in h.
func NewPeerAuthRequest(token string, h http.Header) AuthRequest {
	headers := make(map[string]string, len(forwardedHeaders))
	for name, v := range ForwardedIdentityFromHeader(h) {
		headers[strings.ToLower(name)] = v
	}
	return AuthRequest{
		APIKey: token,
		Request: RequestContext{
			Path:    "/",
			Headers: headers,
			Params:  map[string]string{},
		},
	}
}

func (s *service) SelfTest(ctx context.Context, forwarded http.Header) (*Decision, error) {
	ctx, span := tracer.Start(ctx, "domain.auth.SelfTest")
	defer span.End()

	token := s.tokens.Token(ctx)
	span.SetAttributes(attribute.Bool("auth.service_account_token", token.Found))

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status, body, err := s.peer.ValidatePeer(callCtx, NewPeerAuthRequest(token.Token, forwarded))
	if err != nil {
		err = classify(ctx, err)
		tracer.Fail(span, err)
		return nil, err
	}
	if status != http.StatusOK {
		logger.WarnContext(ctx, "peer authentication failed", slog.Int("status", status))
		err := &StatusError{StatusCode: status}
		tracer.Fail(span, err)
		return nil, err
	}

	var decision Decision
	if err := json.Unmarshal(body, &decision); err != nil {
		logger.WarnContext(ctx, "error parsing authentication response", logger.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponseFormat, err)
	}
	if decision.Principal == "" {
		return nil, fmt.Errorf("%w: missing principal", ErrInvalidResponseFormat)
	}

	return &decision, nil
}

func (s *service) CurrentUser(ctx context.Context, forwarded http.Header) (*store.User, error) {
	identity := ForwardedIdentityFromHeader(forwarded)
	user, err := s.users.FindByIdentity(ctx, identity[HeaderForwardedUser], identity[HeaderForwardedEmail])
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// classify keeps timeouts distinguishable and collapses every other transport
// failure into ErrAuthServiceError; the cause is logged, not returned.
func classify(ctx context.Context, err error) error {
	if httpclient.IsTimeout(err) {
		logger.WarnContext(ctx, "authentication request timed out", logger.Err(err))
		return fmt.Errorf("%w: %w", ErrAuthServiceTimeout, err)
	}
	logger.ErrorContext(ctx, "error contacting authentication service", logger.Err(err))
	return ErrAuthServiceError
}

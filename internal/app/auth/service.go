package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/astro-web3/ai-virtual-assistant/internal/domain/auth"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/store"
	"github.com/astro-web3/ai-virtual-assistant/pkg/metrics"
	"github.com/astro-web3/ai-virtual-assistant/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
)

const (
	OutcomeAllowed      = "allowed"
	OutcomeUnauthorized = "unauthorized"
	OutcomeUserNotFound = "user_not_found"
	OutcomeTimeout      = "timeout"
	OutcomeError        = "error"
)

type Service interface {
	Validate(ctx context.Context, req auth.AuthRequest) (*auth.Decision, error)
	SelfTest(ctx context.Context, forwarded http.Header) (*auth.Decision, error)
	CurrentUser(ctx context.Context, forwarded http.Header) (*store.User, error)
}

type service struct {
	domainService auth.Service
}

func NewService(domainService auth.Service) Service {
	return &service{
		domainService: domainService,
	}
}

func (s *service) Validate(ctx context.Context, req auth.AuthRequest) (*auth.Decision, error) {
	ctx, span := tracer.Start(ctx, "app.auth.Validate")
	defer span.End()

	span.SetAttributes(
		attribute.String("auth.token_prefix", tokenPrefix(req.APIKey)),
		attribute.String("auth.request_path", req.Request.Path),
	)

	decision, err := s.domainService.Validate(ctx, req)
	outcome := Outcome(err)
	metrics.AuthValidationsTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("auth.principal", decision.Principal))
	return decision, nil
}

func (s *service) SelfTest(ctx context.Context, forwarded http.Header) (*auth.Decision, error) {
	ctx, span := tracer.Start(ctx, "app.auth.SelfTest")
	defer span.End()

	decision, err := s.domainService.SelfTest(ctx, forwarded)
	span.SetAttributes(attribute.String("auth.outcome", Outcome(err)))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return decision, nil
}

func (s *service) CurrentUser(ctx context.Context, forwarded http.Header) (*store.User, error) {
	ctx, span := tracer.Start(ctx, "app.auth.CurrentUser")
	defer span.End()

	user, err := s.domainService.CurrentUser(ctx, forwarded)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("auth.principal", user.Username))
	return user, nil
}

// Outcome maps a validation result to its metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeAllowed
	case errors.Is(err, auth.ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, auth.ErrUserNotFound):
		return OutcomeUserNotFound
	case errors.Is(err, auth.ErrAuthServiceTimeout):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}

const tokenPrefixLength = 8

func tokenPrefix(token string) string {
	token = auth.StripBearer(token)
	if len(token) > tokenPrefixLength {
		return token[:tokenPrefixLength] + "..."
	}
	return "***"
}

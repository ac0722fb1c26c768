package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	authapp "github.com/astro-web3/ai-virtual-assistant/internal/app/auth"
	"github.com/astro-web3/ai-virtual-assistant/internal/domain/auth"
	"github.com/astro-web3/ai-virtual-assistant/pkg/logger"
	"github.com/astro-web3/ai-virtual-assistant/pkg/tracer"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type Handler struct {
	appService authapp.Service
}

func NewHandler(appService authapp.Service) *Handler {
	return &Handler{
		appService: appService,
	}
}

// userResponse is the shape returned by the self-test endpoint.
type userResponse struct {
	Principal  string              `json:"principal"`
	Attributes map[string][]string `json:"attributes"`
}

// Validate is the external auth provider endpoint llama-stack calls for
// every inbound request.
func (h *Handler) Validate(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.Validate")
	defer span.End()

	var req auth.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("auth.invalid_body", true))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	decision, err := h.appService.Validate(ctx, req)
	if err != nil {
		span.RecordError(err)
		status, detail := errorResponse(err)
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(ctx, "failed to validate token", logger.Err(err))
		} else {
			logger.WarnContext(ctx, "validation rejected", slog.String("detail", detail))
		}
		c.JSON(status, gin.H{"detail": detail})
		return
	}

	c.JSON(http.StatusOK, decision)
}

// SelfTest validates the service-account token against the peer endpoint
// on behalf of the caller's forwarded identity.
func (h *Handler) SelfTest(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.SelfTest")
	defer span.End()

	decision, err := h.appService.SelfTest(ctx, c.Request.Header)
	if err != nil {
		span.RecordError(err)
		status, detail := errorResponse(err)
		logger.WarnContext(ctx, "self test failed", slog.Int("status", status), logger.Err(err))
		c.JSON(status, gin.H{"detail": detail})
		return
	}

	c.JSON(http.StatusOK, userResponse{
		Principal:  decision.Principal,
		Attributes: decision.Attributes,
	})
}

// CurrentUser returns the local account of the forwarded identity.
func (h *Handler) CurrentUser(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.CurrentUser")
	defer span.End()

	user, err := h.appService.CurrentUser(ctx, c.Request.Header)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, auth.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
			return
		}
		logger.ErrorContext(ctx, "failed to load current user", logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, user)
}

func errorResponse(err error) (int, string) {
	var statusErr *auth.StatusError
	switch {
	case errors.As(err, &statusErr):
		return http.StatusForbidden, fmt.Sprintf("Authentication failed: %d", statusErr.StatusCode)
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusForbidden, "Authentication failed"
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusForbidden, "User not found"
	case errors.Is(err, auth.ErrAuthServiceTimeout):
		return http.StatusGatewayTimeout, "Authentication service timeout"
	case errors.Is(err, auth.ErrInvalidResponseFormat):
		return http.StatusBadGateway, "Invalid response format from authentication service"
	case errors.Is(err, auth.ErrAuthServiceError):
		return http.StatusBadGateway, "Authentication service error"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

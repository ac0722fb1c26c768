package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/astro-web3/ai-virtual-assistant/internal/infra/llamastack"
	"github.com/astro-web3/ai-virtual-assistant/pkg/logger"
	"github.com/astro-web3/ai-virtual-assistant/pkg/tracer"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const (
	AgentTypeRegular = "Regular"
	AgentTypeReAct   = "ReAct"
)

type ClientFactory interface {
	ForRequest(ctx context.Context, h http.Header) *llamastack.Client
}

// AssistantHandler opens chat sessions on virtual assistants that already
// exist as llama-stack agents.
type AssistantHandler struct {
	clients ClientFactory
}

func NewAssistantHandler(clients ClientFactory) *AssistantHandler {
	return &AssistantHandler{clients: clients}
}

type createSessionRequest struct {
	SessionName    string         `json:"session_name"`
	AgentType      string         `json:"agent_type"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type"`
}

type turnRequest struct {
	AgentType      string               `json:"agent_type"`
	ResponseFormat map[string]any       `json:"response_format,omitempty"`
	Messages       []llamastack.Message `json:"messages" binding:"required,min=1"`
}

func (h *AssistantHandler) CreateSession(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.CreateSession")
	defer span.End()

	var req createSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
			return
		}
	}
	if req.SessionName == "" {
		req.SessionName = "session"
	}

	agent, err := h.attach(ctx, c, req.AgentType, req.ResponseFormat)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	span.SetAttributes(
		attribute.String("agent.id", agent.ID),
		attribute.String("agent.kind", string(agent.Kind)),
	)

	session, err := agent.CreateSession(ctx, req.SessionName)
	if err != nil {
		tracer.Fail(span, err)
		logger.ErrorContext(ctx, "failed to create session",
			slog.String("agent_id", agent.ID),
			logger.Err(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"detail": "failed to create session"})
		return
	}

	c.JSON(http.StatusCreated, createSessionResponse{
		SessionID: session.ID,
		AgentID:   agent.ID,
		AgentType: agentType(agent.Kind),
	})
}

func (h *AssistantHandler) Turn(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.Turn")
	defer span.End()

	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	agent, err := h.attach(ctx, c, req.AgentType, req.ResponseFormat)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	turn, err := agent.Turn(ctx, c.Param("session_id"), req.Messages)
	if err != nil {
		tracer.Fail(span, err)
		logger.ErrorContext(ctx, "failed to run turn",
			slog.String("agent_id", agent.ID),
			slog.String("session_id", c.Param("session_id")),
			logger.Err(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"detail": "failed to run turn"})
		return
	}

	c.JSON(http.StatusOK, turn)
}

var errUnknownAgentType = errors.New("agent_type must be Regular or ReAct")

// attach binds to the assistant's existing agent; the path id is the agent id.
func (h *AssistantHandler) attach(
	ctx context.Context,
	c *gin.Context,
	kind string,
	responseFormat map[string]any,
) (*llamastack.Agent, error) {
	client := h.clients.ForRequest(ctx, c.Request.Header)
	cfg := llamastack.AgentConfig{ResponseFormat: responseFormat}

	switch kind {
	case "", AgentTypeRegular:
		return llamastack.AttachAgent(client, c.Param("id"), cfg)
	case AgentTypeReAct:
		return llamastack.AttachReActAgent(client, c.Param("id"), cfg)
	default:
		return nil, errUnknownAgentType
	}
}

func agentType(k llamastack.Kind) string {
	if k == llamastack.KindReAct {
		return AgentTypeReAct
	}
	return AgentTypeRegular
}

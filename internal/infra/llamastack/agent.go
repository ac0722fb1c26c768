package llamastack

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

type Kind string

const (
	KindAgent Kind = "agent"
	KindReAct Kind = "react"
)

var ErrMissingAgentID = errors.New("agent id is required")

type AgentConfig struct {
	Model          string         `json:"model"`
	Instructions   string         `json:"instructions,omitempty"`
	Name           string         `json:"name,omitempty"`
	Toolgroups     []string       `json:"toolgroups,omitempty"`
	SamplingParams map[string]any `json:"sampling_params,omitempty"`
	MaxInferIters  int            `json:"max_infer_iters,omitempty"`
	// ResponseFormat is only sent by ReAct agents.
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Session struct {
	ID string `json:"session_id"`
}

type Turn struct {
	ID        string           `json:"turn_id"`
	SessionID string           `json:"session_id"`
	Output    *OutputMessage   `json:"output_message,omitempty"`
	Steps     []map[string]any `json:"steps,omitempty"`
}

type OutputMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Agent is a handle on a remote llama-stack agent.
type Agent struct {
	ID     string
	Kind   Kind
	Config AgentConfig

	client *Client
}

// CreateAgent registers a new agent with llama-stack and returns its handle.
func CreateAgent(ctx context.Context, client *Client, cfg AgentConfig) (*Agent, error) {
	cfg.ResponseFormat = nil

	var out struct {
		AgentID string `json:"agent_id"`
	}
	if err := client.post(ctx, "/v1/agents", map[string]any{"agent_config": cfg}, &out); err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	if out.AgentID == "" {
		return nil, fmt.Errorf("creating agent: %w", ErrMissingAgentID)
	}
	return &Agent{ID: out.AgentID, Kind: KindAgent, Config: cfg, client: client}, nil
}

// AttachAgent binds to an agent that already exists remotely. No call is made;
// agentID is trusted as valid.
func AttachAgent(client *Client, agentID string, cfg AgentConfig) (*Agent, error) {
	if agentID == "" {
		return nil, ErrMissingAgentID
	}
	cfg.ResponseFormat = nil
	return &Agent{ID: agentID, Kind: KindAgent, Config: cfg, client: client}, nil
}

// AttachReActAgent is AttachAgent for ReAct agents, which keep cfg.ResponseFormat.
func AttachReActAgent(client *Client, agentID string, cfg AgentConfig) (*Agent, error) {
	if agentID == "" {
		return nil, ErrMissingAgentID
	}
	return &Agent{ID: agentID, Kind: KindReAct, Config: cfg, client: client}, nil
}

func (a *Agent) CreateSession(ctx context.Context, name string) (*Session, error) {
	var out Session
	path := "/v1/agents/" + url.PathEscape(a.ID) + "/session"
	if err := a.client.post(ctx, path, map[string]string{"session_name": name}, &out); err != nil {
		return nil, fmt.Errorf("creating session for agent %s: %w", a.ID, err)
	}
	return &out, nil
}

// Turn sends messages to an existing session and waits for the complete,
// non-streamed turn.
func (a *Agent) Turn(ctx context.Context, sessionID string, messages []Message) (*Turn, error) {
	body := map[string]any{
		"messages": messages,
		"stream":   false,
	}
	if a.Kind == KindReAct && a.Config.ResponseFormat != nil {
		body["response_format"] = a.Config.ResponseFormat
	}

	var out Turn
	path := "/v1/agents/" + url.PathEscape(a.ID) + "/session/" + url.PathEscape(sessionID) + "/turn"
	if err := a.client.post(ctx, path, body, &out); err != nil {
		return nil, fmt.Errorf("running turn for agent %s: %w", a.ID, err)
	}
	return &out, nil
}

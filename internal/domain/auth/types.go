package auth

import "github.com/astro-web3/ai-virtual-assistant/internal/infra/store"

const (
	AttributeRoles = "roles"

	MessageAuthenticated = "Authentication successful"
)

// RequestContext describes the inbound request an AuthRequest is about.
type RequestContext struct {
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers"`
	Params  map[string]string `json:"params"`
}

// AuthRequest is the body llama-stack posts to an external auth provider.
type AuthRequest struct {
	APIKey  string         `json:"api_key"`
	Request RequestContext `json:"request"`
}

// Decision is the outcome of a successful authentication.
type Decision struct {
	Principal  string              `json:"principal"`
	Attributes map[string][]string `json:"attributes"`
	Message    string              `json:"message,omitempty"`
}

func decisionFor(u *store.User) *Decision {
	return &Decision{
		Principal: u.Username,
		Attributes: map[string][]string{
			AttributeRoles: {u.Role},
		},
		Message: MessageAuthenticated,
	}
}

// Package serviceaccount reads the credentials Kubernetes mounts into every pod.
package serviceaccount

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/astro-web3/ai-virtual-assistant/pkg/logger"
)

const (
	DefaultTokenPath     = "/var/run/secrets/kubernetes.io/serviceaccount/token"
	DefaultNamespacePath = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"
)

// Result is the outcome of a token read. A zero Result means no token is
// available, which callers treat as "proceed without a service-account identity".
type Result struct {
	Token string
	Found bool
}

// Source yields the process-wide fallback identity.
type Source interface {
	Token(ctx context.Context) Result
}

type fileSource struct {
	path string
}

// NewFileSource returns a Source that re-reads path on every call so rotated
// tokens are picked up without a restart.
func NewFileSource(path string) Source {
	if path == "" {
		path = DefaultTokenPath
	}
	return &fileSource{path: path}
}

func (s *fileSource) Token(ctx context.Context) Result {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.WarnContext(ctx, "service account token not mounted", slog.String("path", s.path))
		} else {
			logger.ErrorContext(ctx, "failed to read service account token",
				slog.String("path", s.path),
				logger.Err(err),
			)
		}
		return Result{}
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		logger.WarnContext(ctx, "service account token file is empty", slog.String("path", s.path))
		return Result{}
	}
	return Result{Token: token, Found: true}
}

type staticSource struct {
	result Result
}

// Static returns a Source that always yields token; an empty token yields an absent Result.
func Static(token string) Source {
	return &staticSource{result: Result{Token: token, Found: token != ""}}
}

func (s *staticSource) Token(context.Context) Result {
	return s.result
}

// Namespace returns the namespace mounted at path, or fallback when it cannot be read.
func Namespace(ctx context.Context, path, fallback string) string {
	if path == "" {
		path = DefaultNamespacePath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.DebugContext(ctx, "namespace file unreadable, using fallback",
			slog.String("path", path),
			slog.String("fallback", fallback),
		)
		return fallback
	}
	ns := strings.TrimSpace(string(data))
	if ns == "" {
		return fallback
	}
	return ns
}

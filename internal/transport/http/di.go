package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	authapp "github.com/astro-web3/ai-virtual-assistant/internal/app/auth"
	"github.com/astro-web3/ai-virtual-assistant/internal/app/startup"
	"github.com/astro-web3/ai-virtual-assistant/internal/config"
	authdomain "github.com/astro-web3/ai-virtual-assistant/internal/domain/auth"
	"github.com/astro-web3/ai-virtual-assistant/internal/domain/inventory"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/authsvc"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/cache"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/kube"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/llamastack"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/serviceaccount"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/store"
	"github.com/astro-web3/ai-virtual-assistant/internal/transport/http/handler"
	"github.com/astro-web3/ai-virtual-assistant/pkg/logger"
	"github.com/astro-web3/ai-virtual-assistant/pkg/otel"
	"github.com/astro-web3/ai-virtual-assistant/pkg/tracer"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	httpServer   *http.Server
	orchestrator *startup.Orchestrator
	db           *store.DB
	redis        *redis.Client
}

const (
	idleTimeoutMultiplier = 2
	serviceName           = "ai-virtual-assistant"
)

func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger.InitLogger(cfg.Observability.LogLevel, cfg.Observability.Format, cfg.Observability.LogSource)

	namespace := serviceaccount.Namespace(ctx, cfg.Kubernetes.NamespaceFile, cfg.Kubernetes.DefaultNamespace)

	otelCfg := otel.DefaultConfig()
	otelCfg.EndpointURL = cfg.Observability.TracingEndpointURL
	otelCfg.Enabled = cfg.Observability.TraceEnabled
	otelCfg.Namespace = namespace
	if err := tracer.InitTracer(serviceName, otelCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	db, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	users := store.NewUserRepository(db)
	inventoryRepo := store.NewInventoryRepository(db)

	if cfg.LlamaStack.AdminUsername != "" {
		created, err := users.EnsureAdmin(ctx, cfg.LlamaStack.AdminUsername)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ensure admin user: %w", err)
		}
		if created {
			logger.InfoContext(ctx, "admin user created", slog.String("username", cfg.LlamaStack.AdminUsername))
		}
	}

	tokens := serviceaccount.NewFileSource(cfg.Kubernetes.TokenFile)
	authOpts := []authdomain.Option{
		authdomain.WithTokenSource(tokens),
		authdomain.WithTimeout(cfg.Auth.Timeout),
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" && cfg.Auth.CacheTTL > 0 {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis.URL, cfg.Redis.PoolSize)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		authOpts = append(authOpts, authdomain.WithCache(cache.NewIntrospectionCache(redisClient), cfg.Auth.CacheTTL))
	}

	authClient := authsvc.NewClient(cfg.Auth.IntrospectionURL, cfg.Auth.PeerURL)
	authDomainService := authdomain.NewService(authClient, authClient, users, authOpts...)
	appService := authapp.NewService(authDomainService)

	clients := llamastack.NewFactory(cfg.LlamaStack.URL, cfg.LlamaStack.AdminUsername, tokens)
	syncers := inventory.Syncers(clients.SyncSource(), db, inventoryRepo)

	orchestrator := startup.NewOrchestrator(startup.Config{
		SelfURL:       cfg.Startup.SelfURL,
		ProbeAttempts: cfg.Startup.ProbeAttempts,
		ProbeInterval: cfg.Startup.ProbeInterval,
		Namespace: func(context.Context) string {
			return namespace
		},
		CompanionService: cfg.Kubernetes.CompanionService,
		ReadyTimeout:     cfg.Kubernetes.ReadyTimeout,
		ReadyInterval:    cfg.Kubernetes.ReadyInterval,
	}, newGate(ctx, cfg.Kubernetes.Kubeconfig), syncers)

	router := NewRouter(Routes{
		Auth:       NewHandler(appService),
		Inventory:  handler.NewInventoryHandler(inventoryRepo),
		Assistants: handler.NewAssistantHandler(clients),
		Startup:    orchestrator,
		Database:   db,
	}, cfg)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout * idleTimeoutMultiplier,
	}

	return &Server{
		httpServer:   httpServer,
		orchestrator: orchestrator,
		db:           db,
		redis:        redisClient,
	}, nil
}

// unavailableGate stands in when no cluster credentials exist, e.g. local runs.
type unavailableGate struct {
	err error
}

func (g unavailableGate) WaitForService(ctx context.Context, name, namespace string, _, _ time.Duration) bool {
	logger.WarnContext(ctx, "kubernetes unavailable, cannot wait for service",
		slog.String("service", name),
		slog.String("namespace", namespace),
		logger.Err(g.err),
	)
	return false
}

func newGate(ctx context.Context, kubeconfig string) startup.ReadinessGate {
	clientset, err := kube.NewClientset(kubeconfig)
	if err != nil {
		logger.WarnContext(ctx, "kubernetes client unavailable, startup sync disabled", logger.Err(err))
		return unavailableGate{err: err}
	}
	return kube.NewGate(clientset)
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// RunStartup runs the post-start sequence; call it once the listener is up.
func (s *Server) RunStartup(ctx context.Context) startup.Report {
	return s.orchestrator.Run(ctx)
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.redis != nil {
		err = errors.Join(err, s.redis.Close())
	}
	return errors.Join(err, s.db.Close())
}

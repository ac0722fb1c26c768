// Package startup runs the work that has to happen once the HTTP server is
// accepting connections: wait for the authenticated companion service, then
// mirror llama-stack inventories into the local store.
package startup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/astro-web3/ai-virtual-assistant/internal/domain/inventory"
	httpclient "github.com/astro-web3/ai-virtual-assistant/pkg/http"
	"github.com/astro-web3/ai-virtual-assistant/pkg/logger"
	"github.com/astro-web3/ai-virtual-assistant/pkg/metrics"
	"github.com/astro-web3/ai-virtual-assistant/pkg/tracer"
	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrServiceUnready = errors.New("companion service did not become ready")
	ErrSyncFailure    = errors.New("startup sync failed")
)

// ReadinessGate blocks until the named Service has endpoints or timeout elapses.
type ReadinessGate interface {
	WaitForService(ctx context.Context, name, namespace string, timeout, interval time.Duration) bool
}

type Config struct {
	SelfURL          string
	ProbeAttempts    uint
	ProbeInterval    time.Duration
	Namespace        func(ctx context.Context) string
	CompanionService string
	ReadyTimeout     time.Duration
	ReadyInterval    time.Duration
}

// Report summarizes one Run.
type Report struct {
	Serving bool
	Ready   bool
	Failed  []string
}

// Err folds the report into the startup sentinels; nil when everything ran.
func (r Report) Err() error {
	if !r.Ready {
		return ErrServiceUnready
	}
	if len(r.Failed) > 0 {
		return fmt.Errorf("%w: %v", ErrSyncFailure, r.Failed)
	}
	return nil
}

type Orchestrator struct {
	cfg     Config
	gate    ReadinessGate
	syncers []inventory.Syncer
	probe   func(ctx context.Context, url string) error

	done   atomic.Bool
	once   sync.Once
	report Report
}

func NewOrchestrator(cfg Config, gate ReadinessGate, syncers []inventory.Syncer) *Orchestrator {
	if cfg.Namespace == nil {
		cfg.Namespace = func(context.Context) string { return "default" }
	}
	return &Orchestrator{
		cfg:     cfg,
		gate:    gate,
		syncers: syncers,
		probe:   probeOK,
	}
}

// Done reports whether Run has finished, whatever its outcome.
func (o *Orchestrator) Done() bool {
	return o.done.Load()
}

// Report returns the outcome of the finished Run; zero until Done.
func (o *Orchestrator) Report() Report {
	if !o.Done() {
		return Report{}
	}
	return o.report
}

// Run executes the startup sequence once. Failures are logged and reported,
// never fatal: the API keeps serving whatever the outcome.
func (o *Orchestrator) Run(ctx context.Context) Report {
	o.once.Do(func() {
		o.report = o.run(ctx)
		o.done.Store(true)
	})
	return o.report
}

func (o *Orchestrator) run(ctx context.Context) Report {
	ctx, span := tracer.Start(ctx, "app.startup.Run")
	defer span.End()

	var report Report
	report.Serving = o.WaitUntilServing(ctx)

	namespace := o.cfg.Namespace(ctx)
	span.SetAttributes(
		attribute.String("k8s.namespace.name", namespace),
		attribute.String("k8s.service.name", o.cfg.CompanionService),
	)

	if !o.gate.WaitForService(ctx, o.cfg.CompanionService, namespace, o.cfg.ReadyTimeout, o.cfg.ReadyInterval) {
		logger.WarnContext(ctx, "skipping startup sync",
			slog.String("service", o.cfg.CompanionService),
			slog.String("namespace", namespace),
			logger.Err(ErrServiceUnready),
		)
		tracer.Fail(span, ErrServiceUnready)
		return report
	}
	report.Ready = true
	logger.InfoContext(ctx, "service is ready, running startup sync")

	for _, s := range o.syncers {
		if err := s.Sync(ctx); err != nil {
			metrics.SyncRunsTotal.WithLabelValues(s.Name(), "failure").Inc()
			logger.ErrorContext(ctx, "failed to sync on startup",
				slog.String("syncer", s.Name()),
				logger.Err(fmt.Errorf("%w: %w", ErrSyncFailure, err)),
			)
			report.Failed = append(report.Failed, s.Name())
			continue
		}
		metrics.SyncRunsTotal.WithLabelValues(s.Name(), "success").Inc()
	}

	if len(report.Failed) > 0 {
		tracer.Fail(span, report.Err())
	}
	return report
}

// WaitUntilServing polls SelfURL until it answers 200 or the attempts run
// out. It reports whether the server answered; callers proceed either way.
func (o *Orchestrator) WaitUntilServing(ctx context.Context) bool {
	attempts := o.cfg.ProbeAttempts
	if attempts == 0 {
		attempts = 1
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, o.probe(ctx, o.cfg.SelfURL)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(o.cfg.ProbeInterval)),
		backoff.WithMaxTries(attempts),
	)
	if err != nil {
		logger.WarnContext(ctx, "server did not answer self check, continuing",
			slog.String("url", o.cfg.SelfURL),
			slog.Uint64("attempts", uint64(attempts)),
			logger.Err(err),
		)
		return false
	}

	logger.InfoContext(ctx, "server is accepting connections", slog.String("url", o.cfg.SelfURL))
	return true
}

var errNotServing = errors.New("self check returned non-200 status")

func probeOK(ctx context.Context, url string) error {
	resp, err := httpclient.Get(ctx, url)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: %d", errNotServing, resp.StatusCode())
	}
	return nil
}

// Package kube wraps the Kubernetes API calls the service makes at startup.
package kube

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/astro-web3/ai-virtual-assistant/pkg/logger"
	"github.com/astro-web3/ai-virtual-assistant/pkg/metrics"
	"github.com/astro-web3/ai-virtual-assistant/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
)

// NewClientset builds a clientset from in-cluster credentials, falling back
// to kubeconfig (or the default loading rules when kubeconfig is empty).
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		if kubeconfig != "" {
			loadingRules.ExplicitPath = kubeconfig
		}
		cfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			loadingRules, &clientcmd.ConfigOverrides{},
		).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load kubernetes config: %w", err)
		}
	}

	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return cs, nil
}

// Gate reports when a Service has routable endpoints.
type Gate struct {
	client kubernetes.Interface
}

func NewGate(client kubernetes.Interface) *Gate {
	return &Gate{client: client}
}

// WaitForService polls the Endpoints of name until one subset lists an
// address (true) or timeout elapses (false). Lookup errors, including
// not-found while the Service is still being created, are retried.
func (g *Gate) WaitForService(ctx context.Context, name, namespace string, timeout, interval time.Duration) bool {
	ctx, span := tracer.Start(ctx, "infra.kube.WaitForService")
	defer span.End()
	span.SetAttributes(
		attribute.String("k8s.service.name", name),
		attribute.String("k8s.namespace.name", namespace),
	)

	start := time.Now()
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		ready, err := g.ready(ctx, name, namespace)
		if err != nil {
			if !apierrors.IsNotFound(err) {
				logger.WarnContext(ctx, "error checking endpoints",
					slog.String("service", name),
					slog.String("namespace", namespace),
					logger.Err(err),
				)
			}
			return false, nil
		}
		if !ready {
			logger.InfoContext(ctx, "waiting for service to be ready",
				slog.String("service", name),
				slog.String("namespace", namespace),
			)
		}
		return ready, nil
	})

	elapsed := time.Since(start)
	if err != nil {
		metrics.ReadinessWaitSeconds.WithLabelValues("timeout").Observe(elapsed.Seconds())
		logger.WarnContext(ctx, "timeout waiting for service",
			slog.String("service", name),
			slog.String("namespace", namespace),
			slog.Duration("elapsed", elapsed),
		)
		span.SetAttributes(attribute.Bool("k8s.service.ready", false))
		return false
	}

	metrics.ReadinessWaitSeconds.WithLabelValues("ready").Observe(elapsed.Seconds())
	logger.InfoContext(ctx, "service is ready",
		slog.String("service", name),
		slog.String("namespace", namespace),
		slog.Duration("elapsed", elapsed),
	)
	span.SetAttributes(attribute.Bool("k8s.service.ready", true))
	return true
}

func (g *Gate) ready(ctx context.Context, name, namespace string) (bool, error) {
	//nolint:staticcheck // Endpoints is what the companion Service's readiness is defined by
	endpoints, err := g.client.CoreV1().Endpoints(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return false, err
	}
	return hasAddress(endpoints), nil
}

//nolint:staticcheck // see ready
func hasAddress(endpoints *corev1.Endpoints) bool {
	for _, subset := range endpoints.Subsets {
		if len(subset.Addresses) > 0 {
			return true
		}
	}
	return false
}

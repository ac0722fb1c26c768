package startup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/astro-web3/ai-virtual-assistant/internal/domain/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockGate struct {
	WaitForServiceFunc func(ctx context.Context, name, namespace string, timeout, interval time.Duration) bool
}

func (m *mockGate) WaitForService(ctx context.Context, name, namespace string, timeout, interval time.Duration) bool {
	return m.WaitForServiceFunc(ctx, name, namespace, timeout, interval)
}

type mockSyncer struct {
	name  string
	err   error
	calls *[]string
}

func (m *mockSyncer) Name() string { return m.name }

func (m *mockSyncer) Sync(context.Context) error {
	*m.calls = append(*m.calls, m.name)
	return m.err
}

func readyGate(ready bool) *mockGate {
	return &mockGate{WaitForServiceFunc: func(context.Context, string, string, time.Duration, time.Duration) bool {
		return ready
	}}
}

func testConfig(selfURL string) Config {
	return Config{
		SelfURL:          selfURL,
		ProbeAttempts:    3,
		ProbeInterval:    time.Millisecond,
		Namespace:        func(context.Context) string { return "assistants" },
		CompanionService: "ai-virtual-assistant-authenticated",
		ReadyTimeout:     time.Second,
		ReadyInterval:    10 * time.Millisecond,
	}
}

func servingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOrchestrator_RunsSyncersInOrder(t *testing.T) {
	var calls []string
	syncers := []inventory.Syncer{
		&mockSyncer{name: inventory.NameMCPServers, calls: &calls},
		&mockSyncer{name: inventory.NameModelServers, calls: &calls},
		&mockSyncer{name: inventory.NameKnowledgeBases, calls: &calls},
	}
	var gotName, gotNamespace string
	gate := &mockGate{WaitForServiceFunc: func(_ context.Context, name, namespace string, _, _ time.Duration) bool {
		gotName, gotNamespace = name, namespace
		return true
	}}

	o := NewOrchestrator(testConfig(servingServer(t).URL), gate, syncers)
	assert.False(t, o.Done())

	report := o.Run(context.Background())

	assert.True(t, o.Done())
	assert.True(t, report.Serving)
	assert.True(t, report.Ready)
	assert.Empty(t, report.Failed)
	require.NoError(t, report.Err())
	assert.Equal(t, []string{inventory.NameMCPServers, inventory.NameModelServers, inventory.NameKnowledgeBases}, calls)
	assert.Equal(t, "ai-virtual-assistant-authenticated", gotName)
	assert.Equal(t, "assistants", gotNamespace)
}

func TestOrchestrator_ModelServerFailureStillRunsKnowledgeBases(t *testing.T) {
	var calls []string
	syncers := []inventory.Syncer{
		&mockSyncer{name: inventory.NameMCPServers, calls: &calls},
		&mockSyncer{name: inventory.NameModelServers, err: errors.New("llama-stack unreachable"), calls: &calls},
		&mockSyncer{name: inventory.NameKnowledgeBases, calls: &calls},
	}

	report := NewOrchestrator(testConfig(servingServer(t).URL), readyGate(true), syncers).Run(context.Background())

	assert.True(t, report.Ready)
	assert.Equal(t, []string{inventory.NameMCPServers, inventory.NameModelServers, inventory.NameKnowledgeBases}, calls)
	assert.Equal(t, []string{inventory.NameModelServers}, report.Failed)
	require.ErrorIs(t, report.Err(), ErrSyncFailure)
}

func TestOrchestrator_UnreadySkipsSync(t *testing.T) {
	var calls []string
	syncers := []inventory.Syncer{&mockSyncer{name: inventory.NameMCPServers, calls: &calls}}

	o := NewOrchestrator(testConfig(servingServer(t).URL), readyGate(false), syncers)
	report := o.Run(context.Background())

	assert.False(t, report.Ready)
	assert.Empty(t, calls)
	assert.True(t, o.Done())
	require.ErrorIs(t, report.Err(), ErrServiceUnready)
}

func TestOrchestrator_RunsOnce(t *testing.T) {
	var calls []string
	syncers := []inventory.Syncer{&mockSyncer{name: inventory.NameMCPServers, calls: &calls}}
	o := NewOrchestrator(testConfig(servingServer(t).URL), readyGate(true), syncers)

	o.Run(context.Background())
	o.Run(context.Background())

	assert.Len(t, calls, 1)
}

func TestWaitUntilServing_RetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	o := NewOrchestrator(testConfig(srv.URL), readyGate(true), nil)

	assert.True(t, o.WaitUntilServing(context.Background()))
	assert.Equal(t, int32(3), hits.Load())
}

func TestWaitUntilServing_GivesUpAfterAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	o := NewOrchestrator(testConfig(srv.URL), readyGate(true), nil)
	report := o.Run(context.Background())

	assert.False(t, report.Serving)
	assert.True(t, report.Ready, "readiness gate still runs when the self check fails")
	assert.Equal(t, int32(3), hits.Load())
}

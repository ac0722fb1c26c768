package inventory_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/astro-web3/ai-virtual-assistant/internal/domain/inventory"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/llamastack"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	ListToolGroupsFunc func(ctx context.Context) ([]llamastack.ToolGroup, error)
	ListModelsFunc     func(ctx context.Context) ([]llamastack.Model, error)
	ListVectorDBsFunc  func(ctx context.Context) ([]llamastack.VectorDB, error)
}

func (m *mockSource) ListToolGroups(ctx context.Context) ([]llamastack.ToolGroup, error) {
	return m.ListToolGroupsFunc(ctx)
}

func (m *mockSource) ListModels(ctx context.Context) ([]llamastack.Model, error) {
	return m.ListModelsFunc(ctx)
}

func (m *mockSource) ListVectorDBs(ctx context.Context) ([]llamastack.VectorDB, error) {
	return m.ListVectorDBsFunc(ctx)
}

func openStore(t *testing.T) (*store.DB, *store.InventoryRepository) {
	t.Helper()
	db, err := store.Open(context.Background(), "file:"+filepath.Join(t.TempDir(), "inventory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, store.NewInventoryRepository(db)
}

func TestSyncers_Order(t *testing.T) {
	db, repo := openStore(t)
	syncers := inventory.Syncers(&mockSource{}, db, repo)

	names := make([]string, 0, len(syncers))
	for _, s := range syncers {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		inventory.NameMCPServers,
		inventory.NameModelServers,
		inventory.NameKnowledgeBases,
	}, names)
}

func TestMCPServerSyncer_KeepsOnlyMCPToolgroups(t *testing.T) {
	ctx := context.Background()
	db, repo := openStore(t)
	src := &mockSource{
		ListToolGroupsFunc: func(context.Context) ([]llamastack.ToolGroup, error) {
			return []llamastack.ToolGroup{
				{Identifier: "mcp::weather", ProviderID: llamastack.ProviderMCP, MCPEndpoint: &llamastack.Endpoint{URI: "http://weather/sse"}},
				{Identifier: "builtin::rag", ProviderID: "rag-runtime"},
			}, nil
		},
	}

	require.NoError(t, inventory.NewMCPServerSyncer(src, db, repo).Sync(ctx))

	servers, err := repo.ListMCPServers(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "mcp::weather", servers[0].Name)
	assert.Equal(t, "http://weather/sse", servers[0].Endpoint)
}

func TestModelServerSyncer_MirrorsRemote(t *testing.T) {
	ctx := context.Background()
	db, repo := openStore(t)
	models := []llamastack.Model{
		{Identifier: "llama3", ProviderID: "vllm", ModelType: "llm"},
		{Identifier: "minilm", ProviderID: "sentence-transformers", ModelType: "embedding"},
	}
	src := &mockSource{
		ListModelsFunc: func(context.Context) ([]llamastack.Model, error) { return models, nil },
	}
	s := inventory.NewModelServerSyncer(src, db, repo)

	require.NoError(t, s.Sync(ctx))
	got, err := repo.ListModelServers(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	models = models[:1]
	require.NoError(t, s.Sync(ctx))
	got, err = repo.ListModelServers(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "llama3", got[0].Name)
}

func TestKnowledgeBaseSyncer_FetchErrorKeepsPreviousRows(t *testing.T) {
	ctx := context.Background()
	db, repo := openStore(t)
	fail := false
	src := &mockSource{
		ListVectorDBsFunc: func(context.Context) ([]llamastack.VectorDB, error) {
			if fail {
				return nil, errors.New("connection refused")
			}
			return []llamastack.VectorDB{{Identifier: "docs", ProviderID: "pgvector", EmbeddingDimension: 384}}, nil
		},
	}
	s := inventory.NewKnowledgeBaseSyncer(src, db, repo)
	require.NoError(t, s.Sync(ctx))

	fail = true
	err := s.Sync(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), inventory.NameKnowledgeBases)

	kbs, err := repo.ListKnowledgeBases(ctx)
	require.NoError(t, err)
	require.Len(t, kbs, 1)
	assert.Equal(t, 384, kbs[0].EmbeddingDimension)
}

func TestSyncer_SlowFetchDoesNotBlockUserLookups(t *testing.T) {
	ctx := context.Background()
	db, repo := openStore(t)
	users := store.NewUserRepository(db)
	require.NoError(t, users.Create(ctx, &store.User{Username: "alice", Role: store.RoleUser}))

	fetching := make(chan struct{})
	release := make(chan struct{})
	src := &mockSource{
		ListModelsFunc: func(context.Context) ([]llamastack.Model, error) {
			close(fetching)
			<-release
			return []llamastack.Model{{Identifier: "llama3", ProviderID: "vllm", ModelType: "llm"}}, nil
		},
	}

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- inventory.NewModelServerSyncer(src, db, repo).Sync(ctx)
	}()
	<-fetching

	lookupCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	u, err := users.FindByIdentity(lookupCtx, "alice", "")
	close(release)

	require.NoError(t, err, "user lookup must not wait for the remote fetch")
	require.NotNil(t, u)
	assert.Equal(t, "alice", u.Username)

	require.NoError(t, <-syncErr)
	servers, err := repo.ListModelServers(ctx)
	require.NoError(t, err)
	assert.Len(t, servers, 1)
}

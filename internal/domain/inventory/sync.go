// Package inventory mirrors the resources registered in llama-stack into the
// local store.
package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/astro-web3/ai-virtual-assistant/internal/infra/llamastack"
	"github.com/astro-web3/ai-virtual-assistant/internal/infra/store"
	"github.com/astro-web3/ai-virtual-assistant/pkg/logger"
	"github.com/astro-web3/ai-virtual-assistant/pkg/tracer"
)

const (
	NameMCPServers     = "mcp_servers"
	NameModelServers   = "model_servers"
	NameKnowledgeBases = "knowledge_bases"
)

// Syncer replaces one local inventory with the remote one.
type Syncer interface {
	Name() string
	Sync(ctx context.Context) error
}

type Source interface {
	ListToolGroups(ctx context.Context) ([]llamastack.ToolGroup, error)
	ListModels(ctx context.Context) ([]llamastack.Model, error)
	ListVectorDBs(ctx context.Context) ([]llamastack.VectorDB, error)
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type Repository interface {
	ReplaceMCPServers(ctx context.Context, tx *sql.Tx, servers []store.MCPServer) error
	ReplaceModelServers(ctx context.Context, tx *sql.Tx, servers []store.ModelServer) error
	ReplaceKnowledgeBases(ctx context.Context, tx *sql.Tx, kbs []store.KnowledgeBase) error
}

// writeFunc stores a fetched inventory inside the sync transaction.
type writeFunc func(ctx context.Context, tx *sql.Tx) error

type syncer struct {
	name  string
	db    TxRunner
	fetch func(ctx context.Context) (int, writeFunc, error)
}

func (s *syncer) Name() string {
	return s.name
}

// Sync fetches the remote inventory before opening the write transaction;
// no connection is held during the fetch. A failed fetch leaves the previous
// inventory untouched.
func (s *syncer) Sync(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "domain.inventory.Sync."+s.name)
	defer span.End()

	count, write, err := s.fetch(ctx)
	if err == nil {
		err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
			return write(ctx, tx)
		})
	}
	if err != nil {
		tracer.Fail(span, err)
		return fmt.Errorf("syncing %s: %w", s.name, err)
	}

	logger.InfoContext(ctx, "inventory synced",
		slog.String("syncer", s.name),
		slog.Int("count", count),
	)
	return nil
}

// Syncers returns the startup sync routines in the order they must run.
func Syncers(src Source, db TxRunner, repo Repository) []Syncer {
	return []Syncer{
		NewMCPServerSyncer(src, db, repo),
		NewModelServerSyncer(src, db, repo),
		NewKnowledgeBaseSyncer(src, db, repo),
	}
}

// NewMCPServerSyncer mirrors toolgroups served by an MCP provider.
func NewMCPServerSyncer(src Source, db TxRunner, repo Repository) Syncer {
	return &syncer{
		name: NameMCPServers,
		db:   db,
		fetch: func(ctx context.Context) (int, writeFunc, error) {
			groups, err := src.ListToolGroups(ctx)
			if err != nil {
				return 0, nil, err
			}
			servers := make([]store.MCPServer, 0, len(groups))
			for _, g := range groups {
				if g.ProviderID != llamastack.ProviderMCP {
					continue
				}
				s := store.MCPServer{Name: g.Identifier, ProviderID: g.ProviderID}
				if g.MCPEndpoint != nil {
					s.Endpoint = g.MCPEndpoint.URI
				}
				servers = append(servers, s)
			}
			return len(servers), func(ctx context.Context, tx *sql.Tx) error {
				return repo.ReplaceMCPServers(ctx, tx, servers)
			}, nil
		},
	}
}

func NewModelServerSyncer(src Source, db TxRunner, repo Repository) Syncer {
	return &syncer{
		name: NameModelServers,
		db:   db,
		fetch: func(ctx context.Context) (int, writeFunc, error) {
			models, err := src.ListModels(ctx)
			if err != nil {
				return 0, nil, err
			}
			servers := make([]store.ModelServer, 0, len(models))
			for _, m := range models {
				servers = append(servers, store.ModelServer{
					Name:       m.Identifier,
					ProviderID: m.ProviderID,
					ModelType:  m.ModelType,
				})
			}
			return len(servers), func(ctx context.Context, tx *sql.Tx) error {
				return repo.ReplaceModelServers(ctx, tx, servers)
			}, nil
		},
	}
}

// NewKnowledgeBaseSyncer mirrors vector databases.
func NewKnowledgeBaseSyncer(src Source, db TxRunner, repo Repository) Syncer {
	return &syncer{
		name: NameKnowledgeBases,
		db:   db,
		fetch: func(ctx context.Context) (int, writeFunc, error) {
			dbs, err := src.ListVectorDBs(ctx)
			if err != nil {
				return 0, nil, err
			}
			kbs := make([]store.KnowledgeBase, 0, len(dbs))
			for _, v := range dbs {
				kbs = append(kbs, store.KnowledgeBase{
					Name:               v.Identifier,
					ProviderID:         v.ProviderID,
					EmbeddingModel:     v.EmbeddingModel,
					EmbeddingDimension: v.EmbeddingDimension,
				})
			}
			return len(kbs), func(ctx context.Context, tx *sql.Tx) error {
				return repo.ReplaceKnowledgeBases(ctx, tx, kbs)
			}, nil
		},
	}
}

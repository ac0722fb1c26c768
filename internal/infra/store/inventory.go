package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type MCPServer struct {
	Name       string    `json:"name"`
	ProviderID string    `json:"provider_id"`
	Endpoint   string    `json:"endpoint,omitempty"`
	SyncedAt   time.Time `json:"synced_at"`
}

type ModelServer struct {
	Name       string    `json:"name"`
	ProviderID string    `json:"provider_id"`
	ModelType  string    `json:"model_type"`
	SyncedAt   time.Time `json:"synced_at"`
}

type KnowledgeBase struct {
	Name               string    `json:"name"`
	ProviderID         string    `json:"provider_id"`
	EmbeddingModel     string    `json:"embedding_model,omitempty"`
	EmbeddingDimension int       `json:"embedding_dimension,omitempty"`
	SyncedAt           time.Time `json:"synced_at"`
}

// InventoryRepository mirrors remote inventories. Replace* calls run inside
// the caller's transaction; List* calls read from the pool.
type InventoryRepository struct {
	db *DB
}

func NewInventoryRepository(db *DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) ReplaceMCPServers(ctx context.Context, tx *sql.Tx, servers []MCPServer) error {
	now := time.Now().Unix()
	names := make([]string, 0, len(servers))
	for _, s := range servers {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO mcp_servers (name, provider_id, endpoint, synced_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET provider_id = excluded.provider_id,
			   endpoint = excluded.endpoint, synced_at = excluded.synced_at`,
			s.Name, s.ProviderID, s.Endpoint, now,
		)
		if err != nil {
			return fmt.Errorf("upserting mcp server %s: %w", s.Name, err)
		}
		names = append(names, s.Name)
	}
	return prune(ctx, tx, "mcp_servers", names)
}

func (r *InventoryRepository) ReplaceModelServers(ctx context.Context, tx *sql.Tx, servers []ModelServer) error {
	now := time.Now().Unix()
	names := make([]string, 0, len(servers))
	for _, s := range servers {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO model_servers (name, provider_id, model_type, synced_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET provider_id = excluded.provider_id,
			   model_type = excluded.model_type, synced_at = excluded.synced_at`,
			s.Name, s.ProviderID, s.ModelType, now,
		)
		if err != nil {
			return fmt.Errorf("upserting model server %s: %w", s.Name, err)
		}
		names = append(names, s.Name)
	}
	return prune(ctx, tx, "model_servers", names)
}

func (r *InventoryRepository) ReplaceKnowledgeBases(ctx context.Context, tx *sql.Tx, kbs []KnowledgeBase) error {
	now := time.Now().Unix()
	names := make([]string, 0, len(kbs))
	for _, kb := range kbs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO knowledge_bases (name, provider_id, embedding_model, embedding_dimension, synced_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET provider_id = excluded.provider_id,
			   embedding_model = excluded.embedding_model,
			   embedding_dimension = excluded.embedding_dimension, synced_at = excluded.synced_at`,
			kb.Name, kb.ProviderID, kb.EmbeddingModel, kb.EmbeddingDimension, now,
		)
		if err != nil {
			return fmt.Errorf("upserting knowledge base %s: %w", kb.Name, err)
		}
		names = append(names, kb.Name)
	}
	return prune(ctx, tx, "knowledge_bases", names)
}

// prune deletes rows of table whose name is not in keep. table is always a
// package constant, never caller input.
func prune(ctx context.Context, tx *sql.Tx, table string, keep []string) error {
	query := `DELETE FROM ` + table
	args := make([]any, 0, len(keep))
	if len(keep) > 0 {
		query += ` WHERE name NOT IN (?` + strings.Repeat(", ?", len(keep)-1) + `)`
		for _, k := range keep {
			args = append(args, k)
		}
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("pruning %s: %w", table, err)
	}
	return nil
}

func (r *InventoryRepository) ListMCPServers(ctx context.Context) ([]MCPServer, error) {
	rows, err := r.db.db.QueryContext(ctx,
		`SELECT name, provider_id, COALESCE(endpoint, ''), synced_at FROM mcp_servers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing mcp servers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []MCPServer{}
	for rows.Next() {
		var (
			s      MCPServer
			synced int64
		)
		if err := rows.Scan(&s.Name, &s.ProviderID, &s.Endpoint, &synced); err != nil {
			return nil, fmt.Errorf("scanning mcp server: %w", err)
		}
		s.SyncedAt = time.Unix(synced, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *InventoryRepository) ListModelServers(ctx context.Context) ([]ModelServer, error) {
	rows, err := r.db.db.QueryContext(ctx,
		`SELECT name, provider_id, model_type, synced_at FROM model_servers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing model servers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []ModelServer{}
	for rows.Next() {
		var (
			s      ModelServer
			synced int64
		)
		if err := rows.Scan(&s.Name, &s.ProviderID, &s.ModelType, &synced); err != nil {
			return nil, fmt.Errorf("scanning model server: %w", err)
		}
		s.SyncedAt = time.Unix(synced, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *InventoryRepository) ListKnowledgeBases(ctx context.Context) ([]KnowledgeBase, error) {
	rows, err := r.db.db.QueryContext(ctx,
		`SELECT name, provider_id, COALESCE(embedding_model, ''), COALESCE(embedding_dimension, 0), synced_at
		 FROM knowledge_bases ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing knowledge bases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []KnowledgeBase{}
	for rows.Next() {
		var (
			kb     KnowledgeBase
			synced int64
		)
		if err := rows.Scan(&kb.Name, &kb.ProviderID, &kb.EmbeddingModel, &kb.EmbeddingDimension, &synced); err != nil {
			return nil, fmt.Errorf("scanning knowledge base: %w", err)
		}
		kb.SyncedAt = time.Unix(synced, 0).UTC()
		out = append(out, kb)
	}
	return out, rows.Err()
}

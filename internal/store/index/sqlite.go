// ABOUTME: SQLite-backed index of agent descriptors for fast queries without reading agents.json.
// ABOUTME: Always rebuildable from agents.json; never the source of truth for descriptor state.
package index

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/draphael89/swarmd/internal/swarm"
)

// AgentRow mirrors one row of the agents table for list query results.
type AgentRow struct {
	AgentID     string
	DisplayName string
	Role        string
	ManagerID   string
	ArchetypeID string
	Status      string
	Cwd         string
	ModelID     string
	UpdatedAt   string
}

// Index is a SQLite-backed cache of agent descriptors, mirroring
// internal/swarm's agents.json for fast reads. Always rebuildable from the
// descriptor store, never authoritative.
type Index struct {
	db *sql.DB
}

// Open opens or creates a SQLite index database at path and ensures the
// schema exists.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			role TEXT NOT NULL,
			manager_id TEXT NOT NULL,
			archetype_id TEXT NOT NULL,
			status TEXT NOT NULL,
			cwd TEXT NOT NULL,
			model_id TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS context_usage_samples (
			agent_id TEXT NOT NULL,
			sampled_at TEXT NOT NULL,
			tokens INTEGER NOT NULL,
			context_window INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_context_usage_samples_agent
			ON context_usage_samples (agent_id, sampled_at);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the underlying database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Upsert inserts or updates a single agent's row.
func (idx *Index) Upsert(d swarm.AgentDescriptor) error {
	_, err := idx.db.Exec(
		`INSERT INTO agents (agent_id, display_name, role, manager_id, archetype_id, status, cwd, model_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET
			display_name = excluded.display_name,
			role = excluded.role,
			manager_id = excluded.manager_id,
			archetype_id = excluded.archetype_id,
			status = excluded.status,
			cwd = excluded.cwd,
			model_id = excluded.model_id,
			updated_at = excluded.updated_at`,
		d.AgentID, d.DisplayName, string(d.Role), d.ManagerID, d.ArchetypeID,
		string(d.Status), d.Cwd, d.Model.ModelID, d.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}

	if d.ContextUsage != nil {
		if _, err := idx.db.Exec(
			`INSERT INTO context_usage_samples (agent_id, sampled_at, tokens, context_window) VALUES (?, ?, ?, ?)`,
			d.AgentID, d.UpdatedAt.Format(time.RFC3339Nano), d.ContextUsage.Tokens, d.ContextUsage.ContextWindow,
		); err != nil {
			return fmt.Errorf("record context usage sample: %w", err)
		}
	}
	return nil
}

// ContextUsageSample is one point in an agent's context-window usage time series.
type ContextUsageSample struct {
	SampledAt     string
	Tokens        int
	ContextWindow int
}

// ContextUsageHistory returns agentID's recorded usage samples, oldest first.
func (idx *Index) ContextUsageHistory(agentID string) ([]ContextUsageSample, error) {
	rows, err := idx.db.Query(
		`SELECT sampled_at, tokens, context_window FROM context_usage_samples
		 WHERE agent_id = ? ORDER BY sampled_at ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("query context usage samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ContextUsageSample
	for rows.Next() {
		var s ContextUsageSample
		if err := rows.Scan(&s.SampledAt, &s.Tokens, &s.ContextWindow); err != nil {
			return nil, fmt.Errorf("scan context usage sample: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes an agent's row by id.
func (idx *Index) Delete(agentID string) error {
	if _, err := idx.db.Exec("DELETE FROM agents WHERE agent_id = ?", agentID); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if _, err := idx.db.Exec("DELETE FROM context_usage_samples WHERE agent_id = ?", agentID); err != nil {
		return fmt.Errorf("delete context usage samples: %w", err)
	}
	return nil
}

// List returns all agent rows, ordered by updated_at descending.
func (idx *Index) List() ([]AgentRow, error) {
	rows, err := idx.db.Query(
		`SELECT agent_id, display_name, role, manager_id, archetype_id, status, cwd, model_id, updated_at
		 FROM agents ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []AgentRow
	for rows.Next() {
		var r AgentRow
		if err := rows.Scan(&r.AgentID, &r.DisplayName, &r.Role, &r.ManagerID,
			&r.ArchetypeID, &r.Status, &r.Cwd, &r.ModelID, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Rebuild clears the agents table and repopulates it from the given
// descriptors, the authoritative set read from agents.json. Rows in
// context_usage_samples are kept; each descriptor carrying ContextUsage
// appends one more sample.
func (idx *Index) Rebuild(descriptors []swarm.AgentDescriptor) error {
	if _, err := idx.db.Exec("DELETE FROM agents"); err != nil {
		return fmt.Errorf("clear agents: %w", err)
	}
	for _, d := range descriptors {
		if err := idx.Upsert(d); err != nil {
			return fmt.Errorf("rebuild upsert %s: %w", d.AgentID, err)
		}
	}
	return nil
}

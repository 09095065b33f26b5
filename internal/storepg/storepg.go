// Package storepg is the optional durable backend for
// HierarchicalStore: a pgx/v5-backed DurableSink plus a pgvector-go
// VectorIndex, grounded directly on the teacher's internal/store
// MemoryStore pgx idiom (pool-holding struct, parameterized queries,
// pgx.ErrNoRows translation, fmt.Errorf wrapping).
package storepg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/louloulin/agentmem/internal/apperr"
	"github.com/louloulin/agentmem/internal/domain"
)

// MemorySink implements store.DurableSink over a Postgres table,
// persisting every field of domain.MemoryRecord the teacher's own
// `memories` table carries an analogue of (metadata as jsonb, tags as
// a text array, embedding as a pgvector column alongside it).
type MemorySink struct {
	db *pgxpool.Pool
}

func NewMemorySink(db *pgxpool.Pool) *MemorySink {
	return &MemorySink{db: db}
}

// PersistUpsert mirrors the teacher's MemoryStore.Create/Update split
// collapsed into one idempotent statement, since HierarchicalStore
// calls it after both Add and Update.
func (s *MemorySink) PersistUpsert(ctx context.Context, m *domain.MemoryRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO memory_records
			(id, content, scope_kind, agent_id, user_id, session_id, level, type,
			 importance, quality_score, source_reliability, created_at, updated_at,
			 accessed_at, access_count, metadata, tags, parent_id, conflict_strategy,
			 lifecycle_state, version, conflict_marker, conflict_timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			 $17, $18, $19, $20, $21, $22, $23)
		 ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			importance = EXCLUDED.importance,
			quality_score = EXCLUDED.quality_score,
			source_reliability = EXCLUDED.source_reliability,
			updated_at = EXCLUDED.updated_at,
			accessed_at = EXCLUDED.accessed_at,
			access_count = EXCLUDED.access_count,
			metadata = EXCLUDED.metadata,
			tags = EXCLUDED.tags,
			parent_id = EXCLUDED.parent_id,
			lifecycle_state = EXCLUDED.lifecycle_state,
			version = EXCLUDED.version,
			conflict_marker = EXCLUDED.conflict_marker,
			conflict_timestamp = EXCLUDED.conflict_timestamp`,
		m.ID, m.Content, m.Scope.Kind.String(), m.Scope.AgentID, m.Scope.UserID, m.Scope.SessionID,
		m.Level, m.Type, m.Importance, m.QualityScore, m.SourceReliability, m.CreatedAt, m.UpdatedAt,
		m.AccessedAt, m.AccessCount, m.Metadata, m.TagSlice(), nullableID(m.ParentID), m.ConflictStrategy,
		m.LifecycleState, m.Version, m.ConflictMarker, m.ConflictTimestamp,
	)
	if err != nil {
		return fmt.Errorf("storepg: persist upsert %s: %w", m.ID, err)
	}
	return nil
}

func (s *MemorySink) PersistDelete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM memory_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storepg: persist delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("memory %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// Reload reads every non-deleted record back. cmd/server calls it on
// startup and logs how many records it read; the records are not
// inserted into HierarchicalStore.
func (s *MemorySink) Reload(ctx context.Context) ([]*domain.MemoryRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, content, scope_kind, agent_id, user_id, session_id, level, type,
			importance, quality_score, source_reliability, created_at, updated_at,
			accessed_at, access_count, metadata, tags, COALESCE(parent_id, ''),
			conflict_strategy, lifecycle_state, version, conflict_marker, conflict_timestamp
		 FROM memory_records WHERE lifecycle_state <> $1`,
		domain.LifecycleDeleted)
	if err != nil {
		return nil, fmt.Errorf("storepg: reload query: %w", err)
	}
	defer rows.Close()

	var out []*domain.MemoryRecord
	for rows.Next() {
		m := &domain.MemoryRecord{}
		var scopeKind string
		var tags []string
		if err := rows.Scan(
			&m.ID, &m.Content, &scopeKind, &m.Scope.AgentID, &m.Scope.UserID, &m.Scope.SessionID,
			&m.Level, &m.Type, &m.Importance, &m.QualityScore, &m.SourceReliability, &m.CreatedAt,
			&m.UpdatedAt, &m.AccessedAt, &m.AccessCount, &m.Metadata, &tags, &m.ParentID,
			&m.ConflictStrategy, &m.LifecycleState, &m.Version, &m.ConflictMarker, &m.ConflictTimestamp,
		); err != nil {
			return nil, fmt.Errorf("storepg: scan reload row: %w", err)
		}
		m.Scope.Kind = scopeKindFromString(scopeKind)
		m.Tags = domain.NewTagSet(tags...)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storepg: reload rows: %w", err)
	}
	return out, nil
}

func scopeKindFromString(s string) domain.ScopeKind {
	switch s {
	case "agent":
		return domain.ScopeAgent
	case "user":
		return domain.ScopeUser
	case "session":
		return domain.ScopeSession
	default:
		return domain.ScopeGlobal
	}
}

func nullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

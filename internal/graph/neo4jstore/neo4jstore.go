// Package neo4jstore is the optional persistent backend for
// GraphMemory (component K), implementing graph.Store over
// github.com/neo4j/neo4j-go-driver/v5. The in-memory graph.InMemoryStore
// stays primary; this is the "domain stays transport-agnostic, driver
// lives in its own package" pattern the teacher applies to
// MemoryStore/pgx, carried over to the graph domain.
package neo4jstore

import (
	"context"
	"fmt"
	"time"

	"github.com/louloulin/agentmem/internal/graph"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Store implements graph.Store against a Neo4j cluster.
type Store struct {
	driver neo4j.DriverWithContext
}

// New dials uri and verifies connectivity before returning, mirroring
// the teacher's pgx pool construction (fail fast on a dead backend).
func New(ctx context.Context, uri, username, password string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4jstore: verify connectivity: %w", err)
	}
	return &Store{driver: driver}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// UpsertNode merges a node by ID, setting its kind and label.
func (s *Store) UpsertNode(ctx context.Context, n graph.Node) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (n:MemoryNode {id: $id})
			SET n.kind = $kind, n.label = $label
		`
		params := map[string]any{
			"id":    n.ID,
			"kind":  n.Kind.String(),
			"label": n.Label,
		}
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("neo4jstore: upsert node %s: %w", n.ID, err)
	}
	return nil
}

// UpsertEdge closes any still-open prior edge of the same relation
// between the same pair before merging the new one in, mirroring
// graph.InMemoryStore's contradiction-aware insertion.
func (s *Store) UpsertEdge(ctx context.Context, e graph.Edge) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		closeQuery := `
			MATCH (a:MemoryNode {id: $fromId})-[r:RELATES {relation: $relation}]->(b:MemoryNode {id: $toId})
			WHERE r.validUntil IS NULL AND r.id <> $id
			SET r.validUntil = $validFrom
		`
		if _, err := tx.Run(ctx, closeQuery, map[string]any{
			"fromId":    e.FromID,
			"toId":      e.ToID,
			"relation":  e.Relation,
			"id":        e.ID,
			"validFrom": e.ValidFrom.UTC().Format(time.RFC3339Nano),
		}); err != nil {
			return nil, err
		}

		var validUntil any
		if e.ValidUntil != nil {
			validUntil = e.ValidUntil.UTC().Format(time.RFC3339Nano)
		}

		mergeQuery := `
			MATCH (a:MemoryNode {id: $fromId})
			MATCH (b:MemoryNode {id: $toId})
			MERGE (a)-[r:RELATES {id: $id}]->(b)
			SET r.relation = $relation, r.validFrom = $validFrom, r.validUntil = $validUntil
		`
		_, err := tx.Run(ctx, mergeQuery, map[string]any{
			"fromId":     e.FromID,
			"toId":       e.ToID,
			"id":         e.ID,
			"relation":   e.Relation,
			"validFrom":  e.ValidFrom.UTC().Format(time.RFC3339Nano),
			"validUntil": validUntil,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("neo4jstore: upsert edge %s: %w", e.ID, err)
	}
	return nil
}

// Neighbors returns the outgoing edges from nodeID valid at t.
func (s *Store) Neighbors(ctx context.Context, nodeID string, at time.Time) ([]graph.Edge, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (a:MemoryNode {id: $id})-[r:RELATES]->(b:MemoryNode)
			WHERE r.validFrom <= $at AND (r.validUntil IS NULL OR r.validUntil > $at)
			RETURN r.id as id, a.id as fromId, b.id as toId, r.relation as relation,
			       r.validFrom as validFrom, r.validUntil as validUntil
		`
		res, err := tx.Run(ctx, query, map[string]any{
			"id": nodeID,
			"at": at.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}

		var edges []graph.Edge
		for res.Next(ctx) {
			rec := res.Record()
			e, err := edgeFromRecord(rec)
			if err != nil {
				return nil, err
			}
			edges = append(edges, e)
		}
		return edges, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: neighbors of %s: %w", nodeID, err)
	}
	return result.([]graph.Edge), nil
}

// ShortestPath delegates reasoning-path discovery to Cypher's
// shortestPath function rather than reimplementing BFS client-side.
func (s *Store) ShortestPath(ctx context.Context, fromID, toID string, at time.Time) ([]graph.Edge, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH path = shortestPath((a:MemoryNode {id: $fromId})-[r:RELATES*]->(b:MemoryNode {id: $toId}))
			WHERE all(rel in relationships(path) WHERE rel.validFrom <= $at AND (rel.validUntil IS NULL OR rel.validUntil > $at))
			RETURN [rel in relationships(path) | rel] as rels
			LIMIT 1
		`
		res, err := tx.Run(ctx, query, map[string]any{
			"fromId": fromID,
			"toId":   toID,
			"at":     at.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}

		if !res.Next(ctx) {
			return []graph.Edge(nil), res.Err()
		}

		rels, _ := res.Record().Get("rels")
		relList, _ := rels.([]any)
		edges := make([]graph.Edge, 0, len(relList))
		for _, rv := range relList {
			rel, ok := rv.(neo4j.Relationship)
			if !ok {
				continue
			}
			e, err := edgeFromRelationship(rel)
			if err != nil {
				return nil, err
			}
			edges = append(edges, e)
		}
		return edges, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: shortest path %s->%s: %w", fromID, toID, err)
	}
	return result.([]graph.Edge), nil
}

func edgeFromRecord(rec *neo4j.Record) (graph.Edge, error) {
	id, _ := rec.Get("id")
	fromID, _ := rec.Get("fromId")
	toID, _ := rec.Get("toId")
	relation, _ := rec.Get("relation")
	validFromRaw, _ := rec.Get("validFrom")
	validUntilRaw, _ := rec.Get("validUntil")

	validFrom, err := time.Parse(time.RFC3339Nano, fmt.Sprint(validFromRaw))
	if err != nil {
		return graph.Edge{}, fmt.Errorf("parse validFrom: %w", err)
	}

	e := graph.Edge{
		ID:        fmt.Sprint(id),
		FromID:    fmt.Sprint(fromID),
		ToID:      fmt.Sprint(toID),
		Relation:  fmt.Sprint(relation),
		ValidFrom: validFrom,
	}
	if validUntilRaw != nil {
		vu, err := time.Parse(time.RFC3339Nano, fmt.Sprint(validUntilRaw))
		if err == nil {
			e.ValidUntil = &vu
		}
	}
	return e, nil
}

// edgeFromRelationship leaves FromID/ToID unset: neo4j.Relationship
// only exposes internal numeric start/end IDs, not our string node
// IDs, and the reasoning-path caller only needs the relation chain.
func edgeFromRelationship(rel neo4j.Relationship) (graph.Edge, error) {
	id, _ := rel.Props["id"].(string)
	relation, _ := rel.Props["relation"].(string)
	validFromRaw := rel.Props["validFrom"]
	validUntilRaw := rel.Props["validUntil"]

	validFrom, err := time.Parse(time.RFC3339Nano, fmt.Sprint(validFromRaw))
	if err != nil {
		return graph.Edge{}, fmt.Errorf("parse validFrom: %w", err)
	}

	e := graph.Edge{ID: id, Relation: relation, ValidFrom: validFrom}
	if validUntilRaw != nil {
		vu, err := time.Parse(time.RFC3339Nano, fmt.Sprint(validUntilRaw))
		if err == nil {
			e.ValidUntil = &vu
		}
	}
	return e, nil
}

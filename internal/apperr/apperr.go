// Package apperr defines the error taxonomy shared across the memory
// engine. Errors are sentinel values wrapped with context via
// fmt.Errorf("...: %w", err) and compared with errors.Is.
package apperr

import "errors"

var (
	// ErrNotFound is returned when a referenced id (memory, agent,
	// hierarchy node) does not exist or is no longer readable.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied is returned when a caller's effective scope does
	// not cover the record's scope (spec invariant I5).
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidContent is returned when content violates length or
	// emptiness bounds.
	ErrInvalidContent = errors.New("invalid content")

	// ErrInvalidLineage is returned when a parent assignment would
	// introduce a cycle in the memory DAG.
	ErrInvalidLineage = errors.New("invalid lineage")

	// ErrInvalidParameters is returned for malformed request input.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrCapacityExceeded is returned only for hierarchy depth
	// violations; routine bucket overflow evicts silently instead.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrConflictUnresolved marks a KeepBoth resolution outcome; the
	// caller should inspect the conflict_marker rather than treat this
	// as a hard failure.
	ErrConflictUnresolved = errors.New("conflict unresolved")

	// ErrTaskTimeout is returned when a dispatched task exceeds its
	// deadline.
	ErrTaskTimeout = errors.New("task timeout")

	// ErrCommunicationError is returned when a worker's channel is
	// unreachable.
	ErrCommunicationError = errors.New("communication error")

	// ErrNoAvailableAgents is returned when no healthy agent serves the
	// requested memory type.
	ErrNoAvailableAgents = errors.New("no available agents")

	// ErrEmbedderUnavailable signals the embedder capability failed;
	// callers degrade to lexical search rather than fail the request.
	ErrEmbedderUnavailable = errors.New("embedder unavailable")
)

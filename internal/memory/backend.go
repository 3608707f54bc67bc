package memory

import "context"

// Backend is the persistence boundary component B sits on top of (spec.md
// §1: "persistence backing... the core sees a repository interface").
// internal/repository provides a concrete in-memory implementation; a real
// deployment substitutes its own ORM/SQL-backed implementation without this
// package changing.
type Backend interface {
	Add(ctx context.Context, item Item) error
	Update(ctx context.Context, id string, patch Patch) (Item, error)
	Get(ctx context.Context, id string) (Item, bool, error)
	Delete(ctx context.Context, id string) error
	// List returns items at level for projectID, newest-updated first,
	// capped at limit (0 means unbounded).
	List(ctx context.Context, projectID string, level Level, limit int) ([]Item, error)
	// DeleteProject removes every item belonging to projectID, across all
	// levels (spec.md §3: "deleting a project deletes all its memory").
	DeleteProject(ctx context.Context, projectID string) error
}

// Embedder computes a vector embedding for text. A nil Embedder is valid:
// Service then runs lexical-only search (spec.md §4.B: vector similarity is
// combined "when embeddings are present").
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

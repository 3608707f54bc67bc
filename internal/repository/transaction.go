package repository

import (
	"context"
	"sync"
)

// Repositories bundles the four reference stores behind one value — the
// "single AgentContext value carries repositories, gateway, vector store,
// and config" dependency spec.md §9's design notes call for, minus the
// gateway/vector pieces (those live in internal/llm and internal/vector).
type Repositories struct {
	Memory    *InMemoryMemoryStore
	Project   *InMemoryProjectStore
	Chapter   *InMemoryChapterStore
	Session   *InMemorySessionStore
	txMu      sync.Mutex // serializes WithTransaction callers; see below
}

// New constructs a Repositories value wired to four fresh, empty in-memory
// stores.
func New() *Repositories {
	return &Repositories{
		Memory:  NewInMemoryMemoryStore(),
		Project: NewInMemoryProjectStore(),
		Chapter: NewInMemoryChapterStore(),
		Session: NewInMemorySessionStore(),
	}
}

// WithTransaction runs fn with every store's current contents snapshotted
// first; if fn returns an error, all four stores are rolled back to their
// pre-call state, so a turn's character upsert, plot append, and chapter
// record either all land or none do (spec.md §5: "commit atomically,
// all-or-nothing"). Concurrent WithTransaction calls are serialized — the
// in-memory stores have no independent locking discipline strong enough to
// interleave two transactions safely, so this is the one true critical
// section spec.md §5 calls "the memory store is the only shared mutable
// resource".
func (r *Repositories) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	memSnap := r.Memory.snapshot()
	projSnap := r.Project.snapshot()
	chSnap := r.Chapter.snapshot()
	sessSnap := r.Session.snapshot()

	if err := fn(ctx); err != nil {
		r.Memory.restore(memSnap)
		r.Project.restore(projSnap)
		r.Chapter.restore(chSnap)
		r.Session.restore(sessSnap)
		return err
	}
	return nil
}

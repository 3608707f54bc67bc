package session

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/yantianqi1/write-agent/internal/coordination"
	"github.com/yantianqi1/write-agent/internal/coreerr"
)

// Store is the persistence boundary this package sits on top of (spec.md
// §6's "session: {create, append_turn, load, evict}" repository contract).
type Store interface {
	Create(ctx context.Context, sess Session) error
	Get(ctx context.Context, id string) (Session, bool, error)
	Save(ctx context.Context, sess Session) error
	Delete(ctx context.Context, id string) error
}

// Summarizer condenses evicted turns into a single CONTEXT-sized summary
// (spec.md §3: "older turns are summarized into a single CONTEXT item on
// eviction"). Kept as a narrow interface so this package never imports the
// LLM gateway directly.
type Summarizer interface {
	Summarize(ctx context.Context, evicted []Turn) (string, error)
}

// ContextSink receives the eviction summary to be stored as a CONTEXT
// memory item. Narrow interface over internal/memory.Service.AppendContext.
type ContextSink interface {
	AppendContext(ctx context.Context, projectID, content string, order int) error
}

// Service implements the bounded, serialized session history of spec.md §3
// and §5: turns are append-only, the working window is capped at TurnCap,
// and turns within one session_id never run concurrently.
type Service struct {
	store      Store
	locks      coordination.Locker
	turnCap    int
	summarizer Summarizer  // optional
	sink       ContextSink // optional
}

// NewService constructs a Service. summarizer and sink may be nil, in which
// case evicted turns are simply dropped (no CONTEXT summary is produced).
// locker selects the per-session_id mutex backend: omit it (or pass nil)
// for the in-process KeyedLock default, or pass a coordination.RedisLock
// for the redis-backed scale-out mode (config.CoordinationConfig.Backend
// == "redis"), so turns for the same session_id serialize across engine
// processes, not just within one.
func NewService(store Store, turnCap int, summarizer Summarizer, sink ContextSink, locker ...coordination.Locker) *Service {
	if turnCap <= 0 {
		turnCap = DefaultTurnCap
	}
	var l coordination.Locker = coordination.NewKeyedLock()
	if len(locker) > 0 && locker[0] != nil {
		l = locker[0]
	}
	return &Service{store: store, locks: l, turnCap: turnCap, summarizer: summarizer, sink: sink}
}

// Create starts a new session, optionally bound to projectID ("" for none).
func (s *Service) Create(ctx context.Context, projectID string) (Session, error) {
	sess := Session{ID: uuid.NewString(), ProjectID: projectID}
	if err := s.store.Create(ctx, sess); err != nil {
		return Session{}, coreerr.Wrap(coreerr.Storage, err, "create session")
	}
	return sess, nil
}

// Load retrieves a session by id.
func (s *Service) Load(ctx context.Context, id string) (Session, error) {
	sess, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return Session{}, coreerr.Wrap(coreerr.Storage, err, "load session")
	}
	if !ok {
		return Session{}, coreerr.New(coreerr.NotFound, "session not found: "+id)
	}
	return sess, nil
}

// Delete removes a session by id (sessions are independently deleted,
// spec.md §3).
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return coreerr.Wrap(coreerr.Storage, err, "delete session")
	}
	return nil
}

// WithLock runs fn holding the per-session_id mutex (spec.md §5: "a new
// turn waits until the prior turn's full pipeline... completes"). fn
// receives the freshly loaded session and returns the session to persist;
// the save happens once, after fn returns successfully, so a cancelled or
// failed fn leaves the stored session untouched (spec.md §5's single
// end-of-turn commit).
func (s *Service) WithLock(ctx context.Context, id string, fn func(ctx context.Context, sess Session) (Session, error)) (Session, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return Session{}, coreerr.Wrap(coreerr.Cancelled, err, "acquire session lock")
	}
	defer unlock()

	sess, err := s.Load(ctx, id)
	if err != nil {
		return Session{}, err
	}

	updated, err := fn(ctx, sess)
	if err != nil {
		return Session{}, err
	}

	if err := s.store.Save(ctx, updated); err != nil {
		return Session{}, coreerr.Wrap(coreerr.Storage, err, "save session")
	}
	return updated, nil
}

// AppendTurn appends turn to sess's history, evicting and summarizing the
// oldest turn once the cap is exceeded (spec.md §3 ring-buffer window).
// Callers hold the session lock (via WithLock) around this; AppendTurn
// itself does no I/O beyond the optional summarizer/sink calls.
func (s *Service) AppendTurn(ctx context.Context, sess Session, turn Turn) (Session, error) {
	sess.Turns = append(sess.Turns, turn)

	for len(sess.Turns) > s.turnCap {
		evicted := sess.Turns[0]
		sess.Turns = sess.Turns[1:]

		if s.summarizer != nil && s.sink != nil {
			summary, err := s.summarizer.Summarize(ctx, []Turn{evicted})
			if err != nil {
				slog.Warn("session turn eviction summarization failed", "session_id", sess.ID, "error", err)
			} else if summary != "" {
				if err := s.sink.AppendContext(ctx, sess.ProjectID, summary, sess.EvictedCount); err != nil {
					slog.Warn("failed to persist eviction summary", "session_id", sess.ID, "error", err)
				}
			}
		}
		sess.EvictedCount++
	}

	return sess, nil
}

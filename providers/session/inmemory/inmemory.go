package inmemory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/leofalp/sqlgraph/providers/observability"
	"github.com/leofalp/sqlgraph/providers/session"
)

// Store is a session store guarded by an RWMutex. Lookups, which every turn
// performs, only take the read lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// New returns an empty [Store] ready for immediate use.
func New() *Store {
	return &Store{
		sessions: make(map[string]*session.Session),
	}
}

// Ensure Store implements session.Store at compile time.
var _ session.Store = (*Store)(nil)

// Put stores a session. It fails for nil sessions and empty identifiers.
// When an observability span is present in ctx, an event is recorded with
// the session identifier and the running total is set as a span attribute.
func (store *Store) Put(ctx context.Context, stored *session.Session) error {
	if stored == nil || stored.ID == "" {
		return fmt.Errorf("session store: a session needs an identifier")
	}

	span := observability.SpanFromContext(ctx)
	if span != nil {
		span.AddEvent(observability.EventSessionCreate,
			observability.String(observability.AttrSessionID, stored.ID),
			observability.String(observability.AttrDBID, stored.DBID),
		)
	}

	store.mu.Lock()
	store.sessions[stored.ID] = stored
	total := len(store.sessions)
	store.mu.Unlock()

	if span != nil {
		span.SetAttributes(observability.Int(observability.AttrSessionCount, total))
	}
	return nil
}

// Get returns the session with id.
// The context parameter is accepted for interface compliance but is not used
// by the in-memory implementation.
func (store *Store) Get(_ context.Context, id string) (*session.Session, error) {
	store.mu.RLock()
	found, exists := store.sessions[id]
	store.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %q", session.ErrSessionNotFound, id)
	}
	return found, nil
}

// Delete removes the session with id. A turn already running on it finishes
// normally but its session can no longer be looked up.
func (store *Store) Delete(ctx context.Context, id string) error {
	store.mu.Lock()
	_, exists := store.sessions[id]
	delete(store.sessions, id)
	store.mu.Unlock()
	if !exists {
		return fmt.Errorf("%w: %q", session.ErrSessionNotFound, id)
	}

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventSessionDelete,
			observability.String(observability.AttrSessionID, id),
		)
	}
	return nil
}

// List returns the live sessions, oldest first. Sessions created in the same
// instant are ordered by identifier.
func (store *Store) List(_ context.Context) ([]*session.Session, error) {
	store.mu.RLock()
	out := make([]*session.Session, 0, len(store.sessions))
	for _, stored := range store.sessions {
		out = append(out, stored)
	}
	store.mu.RUnlock()

	slices.SortFunc(out, func(left, right *session.Session) int {
		if order := left.CreatedAt.Compare(right.CreatedAt); order != 0 {
			return order
		}
		return cmp.Compare(left.ID, right.ID)
	})
	return out, nil
}

// Len returns the number of live sessions.
func (store *Store) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.sessions)
}

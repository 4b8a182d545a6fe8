package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/leofalp/sqlgraph/core/state"
	"github.com/leofalp/sqlgraph/patterns/graph"
)

// ErrSessionNotFound is returned for identifiers that were never issued or
// whose session has ended.
var ErrSessionNotFound = errors.New("session not found")

// Graph is the compiled pipeline a session runs its turns through.
type Graph = graph.Graph[state.ExecutionState, state.Delta]

// Session is one ongoing multi-turn conversation.
type Session struct {
	ID        string
	DBID      string
	CreatedAt time.Time

	// Graph is the compiled chat graph every turn runs through.
	Graph *Graph

	mu   sync.Mutex
	chat *state.ChatContext
}

// New returns a session over dbID with an empty chat context.
func New(id, dbID string, compiled *Graph) *Session {
	return &Session{
		ID:        id,
		DBID:      dbID,
		CreatedAt: time.Now(),
		Graph:     compiled,
		chat:      state.NewChatContext(),
	}
}

// Turn runs fn while holding the session lock, so turns of one session never
// overlap. fn may mutate the chat context it receives.
func (session *Session) Turn(fn func(chat *state.ChatContext) error) error {
	session.mu.Lock()
	defer session.mu.Unlock()
	return fn(session.chat)
}

// Chat returns a snapshot of the chat context. It waits for a running turn
// to finish.
func (session *Session) Chat() *state.ChatContext {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.chat.Clone()
}

// Info is the listing view of a session.
type Info struct {
	ID        string    `json:"id"`
	DBID      string    `json:"db_id"`
	CreatedAt time.Time `json:"created_at"`
	Turns     int       `json:"turns"`
}

// Info summarizes the session.
func (session *Session) Info() Info {
	return Info{
		ID:        session.ID,
		DBID:      session.DBID,
		CreatedAt: session.CreatedAt,
		Turns:     len(session.Chat().Turns()),
	}
}

// Store keeps live sessions by identifier.
// Read methods return errors so that shared stores can surface failures.
type Store interface {
	// Put stores session under its ID, replacing any previous entry.
	Put(ctx context.Context, session *Session) error

	// Get returns the session with id or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes the session with id or returns ErrSessionNotFound.
	Delete(ctx context.Context, id string) error

	// List returns the live sessions ordered by creation time.
	List(ctx context.Context) ([]*Session, error)
}

// LoggedTurn is a turn as kept by a TurnLog, together with the part of the
// schema the turn's selection stages settled on.
type LoggedTurn struct {
	DBID     string
	Turn     state.Turn
	Selected state.Schema
}

// TurnLog persists the turns of chat sessions so that a session can be
// resumed after its live entry is gone.
type TurnLog interface {
	// Append records turn as the latest turn of sessionID.
	Append(ctx context.Context, sessionID string, turn LoggedTurn) error

	// Turns returns the turns of sessionID, oldest first. A session with no
	// recorded turns yields an empty slice.
	Turns(ctx context.Context, sessionID string) ([]LoggedTurn, error)

	// Clear forgets every turn of sessionID.
	Clear(ctx context.Context, sessionID string) error
}

// Restore rebuilds a session whose chat context replays turns. The session
// keeps the creation time of its first turn.
func Restore(id, dbID string, compiled *Graph, turns []LoggedTurn) *Session {
	restored := New(id, dbID, compiled)
	for index, logged := range turns {
		if index == 0 && !logged.Turn.At.IsZero() {
			restored.CreatedAt = logged.Turn.At
		}
		restored.chat.RecordTurn(logged.Turn)
		restored.chat.Reference(logged.Selected)
	}
	return restored
}

package session

import (
	"sync"
	"testing"
	"time"

	"github.com/leofalp/sqlgraph/core/state"
)

func TestSession_TurnsAreSerialized(t *testing.T) {
	session := New("s-1", "hr", nil)

	var waitGroup sync.WaitGroup
	for range 25 {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			_ = session.Turn(func(chat *state.ChatContext) error {
				chat.RecordTurn(state.Turn{Question: "q", Status: state.StatusSuccess})
				return nil
			})
		}()
	}
	waitGroup.Wait()

	if got := session.Info().Turns; got != 25 {
		t.Errorf("Expected 25 turns, got %d", got)
	}
}

func TestSession_ChatIsASnapshot(t *testing.T) {
	session := New("s-1", "hr", nil)
	_ = session.Turn(func(chat *state.ChatContext) error {
		chat.Reference(state.Schema{"employees": {"id"}})
		return nil
	})

	snapshot := session.Chat()
	snapshot.Reference(state.Schema{"departments": {"id"}})

	tables := session.Chat().ReferencedTables()
	if len(tables) != 1 || tables[0] != "employees" {
		t.Errorf("Expected the session to keep only employees, got %v", tables)
	}
	info := session.Info()
	if info.ID != "s-1" || info.DBID != "hr" || info.CreatedAt.IsZero() {
		t.Errorf("Unexpected info %+v", info)
	}
}

func TestRestore_ReplaysTurnsAndReferences(t *testing.T) {
	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	restored := Restore("s-1", "hr", nil, []LoggedTurn{
		{
			DBID:     "hr",
			Turn:     state.Turn{Question: "how many employees?", Status: state.StatusSuccess, At: first},
			Selected: state.Schema{"employees": {"id"}},
		},
		{
			DBID:     "hr",
			Turn:     state.Turn{Question: "per department?", Status: state.StatusSuccess, At: first.Add(time.Minute)},
			Selected: state.Schema{"departments": {"id", "name"}},
		},
	})

	if !restored.CreatedAt.Equal(first) {
		t.Errorf("Expected creation time %v, got %v", first, restored.CreatedAt)
	}
	chat := restored.Chat()
	if len(chat.Turns()) != 2 || chat.Turns()[1].Question != "per department?" {
		t.Errorf("Expected both turns replayed in order, got %+v", chat.Turns())
	}
	if got := chat.ReferencedColumns(); len(got) != 3 {
		t.Errorf("Expected 3 referenced columns, got %v", got)
	}
}

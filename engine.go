package sqlgraph

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/leofalp/sqlgraph/core/extract"
	"github.com/leofalp/sqlgraph/core/state"
	"github.com/leofalp/sqlgraph/patterns/graph"
	"github.com/leofalp/sqlgraph/pipeline"
	"github.com/leofalp/sqlgraph/providers/observability"
	"github.com/leofalp/sqlgraph/providers/session"
	"github.com/leofalp/sqlgraph/providers/session/inmemory"
)

// ErrSessionNotFound is returned by the session methods for identifiers that
// were never issued or whose session has ended.
var ErrSessionNotFound = session.ErrSessionNotFound

// Event is one step of a streamed run.
type Event = graph.Event[state.ExecutionState]

// Engine runs questions through the compiled pipeline. It is safe for
// concurrent use: distinct runs and sessions share nothing but the
// collaborators in Deps.
type Engine struct {
	config   pipeline.Config
	deps     pipeline.Deps
	oneShot  *pipeline.Graph
	chat     *pipeline.Graph
	sessions session.Store
	turnLog  session.TurnLog
	observer observability.Provider
}

// Option configures an Engine.
type Option func(*Engine)

// WithSessionStore replaces the default in-memory session store.
func WithSessionStore(store session.Store) Option {
	return func(engine *Engine) {
		engine.sessions = store
	}
}

// WithTurnLog persists every chat turn to log, which makes sessions
// resumable with [Engine.ResumeSession].
func WithTurnLog(log session.TurnLog) Option {
	return func(engine *Engine) {
		engine.turnLog = log
	}
}

// WithObserver sets the observer of the engine and of every stage.
func WithObserver(observer observability.Provider) Option {
	return func(engine *Engine) {
		engine.observer = observer
		engine.deps.Observer = observer
	}
}

// New compiles the one-shot and chat graphs of config. Configuration errors
// are returned together. deps.Database is required.
func New(config pipeline.Config, deps pipeline.Deps, opts ...Option) (*Engine, error) {
	engine := &Engine{
		config:   config,
		deps:     deps,
		observer: deps.Observer,
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.deps.Database == nil {
		return nil, &graph.ConfigurationError{Component: "engine", Name: "database", Reason: "no database configured"}
	}
	if engine.sessions == nil {
		engine.sessions = inmemory.New()
	}

	oneShot, err := pipeline.BuildGraph(config, engine.deps)
	if err != nil {
		return nil, err
	}
	chat, err := pipeline.BuildGraph(config, engine.deps, pipeline.WithChat(), pipeline.WithGraphName(pipeline.DefaultGraphName+".chat"))
	if err != nil {
		return nil, err
	}
	engine.oneShot = oneShot
	engine.chat = chat
	return engine, nil
}

// Graph returns the compiled one-shot graph.
func (engine *Engine) Graph() *pipeline.Graph {
	return engine.oneShot
}

// ChatGraph returns the compiled graph chat turns run through.
func (engine *Engine) ChatGraph() *pipeline.Graph {
	return engine.chat
}

// Warnings returns the build warnings of both graphs, e.g. dropped edges.
func (engine *Engine) Warnings() []string {
	return slices.Concat(engine.oneShot.Warnings(), engine.chat.Warnings())
}

// Run answers one standalone question against dbID. The returned error is
// non-nil only when the run could not start.
func (engine *Engine) Run(ctx context.Context, question, dbID, evidence string) (*Result, error) {
	ctx, span := engine.observeRunStart(ctx, "query", dbID)
	initial, err := engine.initialState(ctx, question, dbID, evidence)
	if err != nil {
		engine.observeRunRejected(ctx, span, err)
		return nil, err
	}

	final, runErr := engine.oneShot.Run(ctx, initial)
	result := engine.Summarize(ctx, final, runErr)
	engine.observeRunEnded(ctx, span, result)
	return result, nil
}

// Stream runs a standalone question and yields one event per graph node.
// Breaking out of the loop stops the run before the next node. Pass the
// last event's state to Summarize to obtain the Result.
func (engine *Engine) Stream(ctx context.Context, question, dbID, evidence string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		ctx = engine.withObserver(ctx)
		initial, err := engine.initialState(ctx, question, dbID, evidence)
		if err != nil {
			yield(Event{State: initial, Next: graph.End}, err)
			return
		}
		for event, err := range engine.oneShot.Stream(ctx, initial) {
			if !yield(event, err) {
				return
			}
		}
	}
}

// Summarize turns the final state of a run into a Result. runErr is the
// error the graph returned, if any. When no stage executed the final SQL, it
// is executed here and the execution is appended to the result's history.
func (engine *Engine) Summarize(ctx context.Context, final state.ExecutionState, runErr error) *Result {
	result := &Result{
		TaskID:           final.Task.ID,
		Question:         final.Task.OriginalQuestion,
		ExecutionHistory: final.History,
		Status:           state.StatusSuccess,
	}
	if record, found := final.History.Latest(state.NodeResponseGeneration); found {
		result.Response = record.String(extract.KeyResponse)
	}

	sql, found := final.History.LatestSQL()
	if found {
		result.SQLQuery = sql
		result.Results, _ = pipeline.ExecutedRows(final.History, sql)
	}

	switch {
	case runErr != nil:
		return result.fail(runErr.Error())
	case final.Halted:
		return result.fail(final.HaltReason)
	case !found:
		reason := "no SQL query was produced"
		if record, failed := final.History.LastError(); failed {
			reason = fmt.Sprintf("%s: %s", reason, record.Error)
		}
		return result.fail(reason)
	}

	if _, executed := pipeline.ExecutedRows(final.History, sql); executed {
		return result
	}
	if record, ran := final.History.Latest(state.NodeSQLExecution); ran && record.Failed() {
		return result.fail(record.Error)
	}
	startedAt := time.Now()
	rows, err := engine.deps.Database.ExecuteSQL(ctx, final.Task.DBID, sql)
	result.ExecutionHistory = final.History.Append(pipeline.ExecutionRecord(sql, rows, err, startedAt))
	if err != nil {
		return result.fail(fmt.Sprintf("execute SQL: %v", err))
	}
	result.Results = rows
	return result
}

func (result *Result) fail(reason string) *Result {
	result.Status = state.StatusError
	result.Error = reason
	return result
}

// StartSession opens a chat over dbID and returns its identifier.
func (engine *Engine) StartSession(ctx context.Context, dbID string) (string, error) {
	ctx = engine.withObserver(ctx)
	if _, err := engine.deps.Database.Schema(ctx, dbID); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}

	id := uuid.NewString()
	if err := engine.sessions.Put(ctx, session.New(id, dbID, engine.chat)); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	engine.observeSession(ctx, "chat session started", id, dbID)
	return id, nil
}

// Turn answers question within the session id. Turns of one session run one
// at a time. After the run the turn is recorded and the tables and columns
// the selection stages settled on join the session's referenced sets.
func (engine *Engine) Turn(ctx context.Context, id, question string) (*Result, error) {
	stored, err := engine.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = stored.Turn(func(chat *state.ChatContext) error {
		ctx, span := engine.observeRunStart(ctx, "chat", stored.DBID,
			observability.String(observability.AttrSessionID, id))
		initial, err := engine.initialState(ctx, question, stored.DBID, "")
		if err != nil {
			engine.observeRunRejected(ctx, span, err)
			return err
		}
		initial.Chat = chat.Clone()

		final, runErr := stored.Graph.Run(ctx, initial)
		result = engine.Summarize(ctx, final, runErr)

		selected, found := pipeline.SelectedSchema(final.History)
		if found {
			chat.Reference(selected)
		}
		turn := state.Turn{
			Question:         question,
			EnhancedQuestion: final.Task.Question,
			SQL:              result.SQLQuery,
			Response:         result.Response,
			Status:           result.Status,
			At:               time.Now(),
		}
		chat.RecordTurn(turn)
		engine.persistTurn(ctx, id, session.LoggedTurn{DBID: stored.DBID, Turn: turn, Selected: selected})
		if span != nil {
			span.AddEvent(observability.EventTurnRecorded,
				observability.String(observability.AttrSessionID, id),
				observability.Int("session.tables", len(chat.ReferencedTables())),
			)
		}
		engine.observeRunEnded(ctx, span, result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Chat returns a snapshot of the chat context of session id.
func (engine *Engine) Chat(ctx context.Context, id string) (*state.ChatContext, error) {
	stored, err := engine.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return stored.Chat(), nil
}

// EndSession discards the session id.
func (engine *Engine) EndSession(ctx context.Context, id string) error {
	ctx = engine.withObserver(ctx)
	if err := engine.sessions.Delete(ctx, id); err != nil {
		return err
	}
	engine.observeSession(ctx, "chat session ended", id, "")
	return nil
}

// ResumeSession makes session id live again. A live session is left as it
// is; otherwise its chat context is rebuilt from the turn log. Without a turn
// log, or for a session with no logged turns, ErrSessionNotFound is returned.
func (engine *Engine) ResumeSession(ctx context.Context, id string) error {
	ctx = engine.withObserver(ctx)
	_, err := engine.sessions.Get(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	if engine.turnLog == nil {
		return err
	}

	turns, err := engine.turnLog.Turns(ctx, id)
	if err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	if len(turns) == 0 {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	dbID := turns[0].DBID
	if _, err := engine.deps.Database.Schema(ctx, dbID); err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	if err := engine.sessions.Put(ctx, session.Restore(id, dbID, engine.chat, turns)); err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventSessionResume,
			observability.String(observability.AttrSessionID, id),
			observability.Int("session.turns", len(turns)),
		)
	}
	engine.observeSession(ctx, "chat session resumed", id, dbID)
	return nil
}

// ForgetSession ends session id if it is live and clears its logged turns.
func (engine *Engine) ForgetSession(ctx context.Context, id string) error {
	if err := engine.EndSession(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	if engine.turnLog == nil {
		return nil
	}
	return engine.turnLog.Clear(ctx, id)
}

// Sessions lists the live sessions, oldest first.
func (engine *Engine) Sessions(ctx context.Context) ([]session.Info, error) {
	stored, err := engine.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]session.Info, len(stored))
	for index, entry := range stored {
		infos[index] = entry.Info()
	}
	return infos, nil
}

// initialState loads the schema of dbID and builds the state a run starts
// from.
func (engine *Engine) initialState(ctx context.Context, question, dbID, evidence string) (state.ExecutionState, error) {
	schema, err := engine.deps.Database.Schema(ctx, dbID)
	if err != nil {
		return state.ExecutionState{}, fmt.Errorf("load schema of %q: %w", dbID, err)
	}
	return state.NewExecutionState(state.NewTask(question, dbID, evidence), schema), nil
}

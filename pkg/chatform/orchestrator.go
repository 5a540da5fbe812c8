package chatform

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatform/pkg/eventbus"
)

// Config wires an Orchestrator. Exactly one of Func/Stream should be set;
// when both are set the streaming variant wins with a warning, mirroring a
// misconfigured-but-recoverable response function.
type Config struct {
	BaseCtx context.Context

	Func   Func
	Stream StreamFunc

	Title       string
	Description string

	Textbox  *Textbox
	ChatView *ChatView

	SubmitButton ButtonSpec
	StopButton   ButtonSpec
	RetryButton  ButtonSpec
	UndoButton   ButtonSpec
	ClearButton  ButtonSpec

	Examples      []string
	CacheExamples bool
	// ExampleStore backs the example cache. When CacheExamples is set and no
	// store is supplied, an in-memory sqlite store is created.
	ExampleStore *ExampleStore

	// HistoryStore, when set, persists committed turns after each chain run.
	HistoryStore *HistoryStore

	// Bus carries trigger events. Defaults to the in-memory transport.
	Bus eventbus.Bus

	// SessionIdleTimeout evicts sessions with no attached clients. Zero
	// disables eviction.
	SessionIdleTimeout time.Duration
}

// Orchestrator owns one chat interface: its component layout, session state,
// event chains, responder, and programmatic entry point. Each instance owns
// its own session manager; nothing is process-global.
type Orchestrator struct {
	responder  *Responder
	sessions   *SessionManager
	dispatcher *Dispatcher
	publisher  UIPublisher
	layout     *layout
	stopCtl    *StopController
	examples   *Examples

	bus      eventbus.Bus
	ownedBus bool

	historyStore *HistoryStore
	exampleStore *ExampleStore
	ownedStore   bool
}

func New(cfg Config) (*Orchestrator, error) {
	baseCtx := cfg.BaseCtx
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	if cfg.Func == nil && cfg.Stream == nil {
		return nil, errors.New("chatform: a response function is required")
	}
	if cfg.Func != nil && cfg.Stream != nil {
		log.Warn().Str("component", "chatform").
			Msg("both single-shot and streaming response functions supplied; using the streaming one")
		cfg.Func = nil
	}
	responder, err := NewResponder(cfg.Func, cfg.Stream)
	if err != nil {
		return nil, err
	}

	submitBtn, err := cfg.SubmitButton.resolve("submit_btn", "Submit", "primary", true)
	if err != nil {
		return nil, err
	}
	stopBtn, err := cfg.StopButton.resolve("stop_btn", "Stop", "stop", false)
	if err != nil {
		return nil, err
	}
	retryBtn, err := cfg.RetryButton.resolve("retry_btn", "Retry", "secondary", true)
	if err != nil {
		return nil, err
	}
	undoBtn, err := cfg.UndoButton.resolve("undo_btn", "Undo", "secondary", true)
	if err != nil {
		return nil, err
	}
	clearBtn, err := cfg.ClearButton.resolve("clear_btn", "Clear", "secondary", true)
	if err != nil {
		return nil, err
	}

	var components []Component
	if cfg.Title != "" {
		components = append(components, titleMarkdown(cfg.Title))
	}
	if cfg.Description != "" {
		components = append(components, markdownComponent("description", cfg.Description))
	}
	components = append(components, cfg.ChatView.component(), cfg.Textbox.component())
	for _, bc := range []struct {
		id  string
		btn *Button
	}{
		{ComponentSubmit, submitBtn},
		{ComponentStop, stopBtn},
		{ComponentRetry, retryBtn},
		{ComponentUndo, undoBtn},
		{ComponentClear, clearBtn},
	} {
		if bc.btn != nil {
			components = append(components, buttonComponent(bc.id, bc.btn))
		}
	}
	lay := newLayout(components...)

	bus := cfg.Bus
	ownedBus := false
	if bus == nil {
		bus, err = eventbus.Build(eventbus.Settings{})
		if err != nil {
			return nil, errors.Wrap(err, "build event bus")
		}
		ownedBus = true
	}

	sessions := NewSessionManager(cfg.SessionIdleTimeout)
	publisher := NewUIPublisher(sessions)
	dispatcher, err := NewDispatcher(DispatcherConfig{
		BaseCtx:   baseCtx,
		Bus:       bus,
		Sessions:  sessions,
		Publisher: publisher,
	})
	if err != nil {
		if ownedBus {
			_ = bus.Close()
		}
		return nil, err
	}
	sessions.SetEvictHook(dispatcher.StopRunner)

	o := &Orchestrator{
		responder:    responder,
		sessions:     sessions,
		dispatcher:   dispatcher,
		publisher:    publisher,
		layout:       lay,
		bus:          bus,
		ownedBus:     ownedBus,
		historyStore: cfg.HistoryStore,
	}

	o.stopCtl = NewStopController(
		lay.has(ComponentSubmit),
		lay.has(ComponentStop),
		responder.Kind() == Streaming,
	)
	o.setupChains(lay)

	if o.historyStore != nil {
		store := o.historyStore
		dispatcher.SetCommitHook(func(sessionID string, history []Turn) {
			if err := store.ReplaceHistory(baseCtx, sessionID, history); err != nil {
				log.Warn().Err(err).Str("component", "chatform").Str("session_id", sessionID).Msg("history persist failed")
			}
		})
	}

	if len(cfg.Examples) > 0 {
		store := cfg.ExampleStore
		if cfg.CacheExamples && store == nil {
			store, err = NewExampleStore("file::memory:?mode=memory&cache=shared")
			if err != nil {
				o.Close()
				return nil, errors.Wrap(err, "build example store")
			}
			o.ownedStore = true
		}
		o.exampleStore = store
		ex, err := newExamples(baseCtx, cfg.Examples, cfg.CacheExamples, store, responder)
		if err != nil {
			o.Close()
			return nil, err
		}
		o.examples = ex
	}

	log.Info().Str("component", "chatform").
		Str("responder", responder.Kind().String()).
		Bool("stop_control", o.stopCtl.Active()).
		Int("components", len(lay.components)).
		Msg("orchestrator constructed")
	return o, nil
}

// setupChains builds the per-action chains and binds them to their triggers.
// Fast-path steps never invoke the response function; only the final resolve
// step does, so the pending user message is visible before the (possibly
// slow) response arrives.
func (o *Orchestrator) setupChains(lay *layout) {
	submit := NewChain("submit").
		Then("clear_and_save_textbox", o.stepClearAndSave).
		Then("display_input", o.stepDisplayInput).
		Then("resolve_response", o.stepResolve)

	o.dispatcher.Bind(TriggerTextboxSubmit, submit, BindOptions{StopControl: o.stopCtl})
	if lay.has(ComponentSubmit) {
		o.dispatcher.Bind(TriggerSubmitClick, submit, BindOptions{StopControl: o.stopCtl})
	}

	if lay.has(ComponentRetry) {
		retry := NewChain("retry").
			Then("delete_previous", o.stepDeletePrevious).
			Then("display_input", o.stepDisplayInput).
			Then("resolve_response", o.stepResolve)
		o.dispatcher.Bind(TriggerRetryClick, retry, BindOptions{StopControl: o.stopCtl})
	}

	if lay.has(ComponentUndo) {
		undo := NewChain("undo").
			Then("delete_previous", o.stepDeletePrevious).
			Then("restore_textbox", o.stepRestoreTextbox)
		o.dispatcher.Bind(TriggerUndoClick, undo, BindOptions{})
	}

	if lay.has(ComponentClear) {
		clearChain := NewChain("clear").
			Then("reset", o.stepReset)
		o.dispatcher.Bind(TriggerClearClick, clearChain, BindOptions{})
	}

	if o.stopCtl.Active() {
		o.dispatcher.Bind(TriggerStopClick, NewChain("stop"), BindOptions{Cancels: true})
	}
}

func (o *Orchestrator) stepClearAndSave(_ context.Context, sess *Session, ev TriggerEvent, emit Emit) error {
	sess.StageInput(ev.Text)
	emit(textboxUpdate(""))
	return nil
}

func (o *Orchestrator) stepDisplayInput(_ context.Context, sess *Session, _ TriggerEvent, emit Emit) error {
	history := sess.AppendPending(sess.StagedInput())
	emit(chatViewUpdate(history))
	return nil
}

func (o *Orchestrator) stepResolve(ctx context.Context, sess *Session, _ TriggerEvent, emit Emit) error {
	message := sess.StagedInput()
	_, err := o.responder.Resolve(ctx, message, sess.historyWithPending(), func(history []Turn) {
		sess.setHistory(history)
		emit(chatViewUpdate(history))
	})
	return err
}

func (o *Orchestrator) stepDeletePrevious(_ context.Context, sess *Session, _ TriggerEvent, emit Emit) error {
	message, history := sess.PopLastTurn()
	sess.StageInput(message)
	emit(chatViewUpdate(history))
	return nil
}

func (o *Orchestrator) stepRestoreTextbox(_ context.Context, sess *Session, _ TriggerEvent, emit Emit) error {
	emit(textboxUpdate(sess.StagedInput()))
	return nil
}

func (o *Orchestrator) stepReset(_ context.Context, sess *Session, _ TriggerEvent, emit Emit) error {
	sess.Reset()
	emit(chatViewUpdate(nil))
	return nil
}

// Trigger ingests one user action for a session.
func (o *Orchestrator) Trigger(ctx context.Context, sessionID string, ev TriggerEvent) error {
	return o.dispatcher.Trigger(ctx, sessionID, ev)
}

// Chat is the programmatic entry point: same single-shot/streaming branching
// as the UI resolve step, no staging/append choreography. For streaming
// response functions it iterates internally and returns the latest partial
// value as the final response.
func (o *Orchestrator) Chat(ctx context.Context, message string, history []Turn) (*string, []Turn, error) {
	return o.responder.ResolveAPI(ctx, message, history, nil)
}

// Sessions exposes the session manager.
func (o *Orchestrator) Sessions() *SessionManager { return o.sessions }

// Components returns the rendered component tree.
func (o *Orchestrator) Components() []Component { return o.layout.Components() }

// Examples returns the examples subsystem, or nil when none are configured.
func (o *Orchestrator) Examples() *Examples { return o.examples }

// Responder exposes the response adapter.
func (o *Orchestrator) Responder() *Responder { return o.responder }

// Close releases owned resources.
func (o *Orchestrator) Close() {
	if o == nil {
		return
	}
	if o.ownedBus && o.bus != nil {
		_ = o.bus.Close()
	}
	if o.ownedStore && o.exampleStore != nil {
		_ = o.exampleStore.Close()
	}
}

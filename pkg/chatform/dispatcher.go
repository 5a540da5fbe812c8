package chatform

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatform/pkg/eventbus"
)

// BindOptions controls how a chain is attached to a trigger.
type BindOptions struct {
	// Cancels short-circuits the per-session queue: the trigger cancels the
	// in-flight chain run instead of enqueueing a run of its own.
	Cancels bool
	// StopControl wraps the run with submit/stop visibility toggles when the
	// controller is active for this trigger.
	StopControl *StopController
}

type binding struct {
	chain *Chain
	opts  BindOptions
}

// Dispatcher owns the event graph: it binds triggers to chains, consumes
// trigger events per session in order, runs chains step by step, and
// broadcasts each step's updates before the next step starts.
//
// Chains are strictly sequential per session; the per-session consumer is
// the serialization point. Streaming resolution suspends between elements,
// which is the only suspension point, and cancellation is safe at any of
// them: history always reflects the last fully emitted update.
type Dispatcher struct {
	baseCtx   context.Context
	bus       eventbus.Bus
	sessions  *SessionManager
	publisher UIPublisher

	mu       sync.Mutex
	bindings map[string]*binding
	runners  map[string]context.CancelFunc
	seen     map[string]map[string]struct{}

	// onCommit runs after a chain completes with the session's final
	// history, used for optional persistence.
	onCommit func(sessionID string, history []Turn)
}

type DispatcherConfig struct {
	BaseCtx   context.Context
	Bus       eventbus.Bus
	Sessions  *SessionManager
	Publisher UIPublisher
}

func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.BaseCtx == nil {
		return nil, errors.New("dispatcher base context is nil")
	}
	if cfg.Bus == nil {
		return nil, errors.New("dispatcher bus is nil")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("dispatcher session manager is nil")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("dispatcher publisher is nil")
	}
	return &Dispatcher{
		baseCtx:   cfg.BaseCtx,
		bus:       cfg.Bus,
		sessions:  cfg.Sessions,
		publisher: cfg.Publisher,
		bindings:  map[string]*binding{},
		runners:   map[string]context.CancelFunc{},
		seen:      map[string]map[string]struct{}{},
	}, nil
}

// SetCommitHook registers a callback invoked with the final history after a
// chain run completes naturally.
func (d *Dispatcher) SetCommitHook(f func(sessionID string, history []Turn)) {
	d.mu.Lock()
	d.onCommit = f
	d.mu.Unlock()
}

// Bind attaches a chain to a trigger. Binding the same chain to multiple
// triggers is allowed and common (textbox submit and submit click share one
// chain).
func (d *Dispatcher) Bind(trigger string, chain *Chain, opts BindOptions) {
	d.mu.Lock()
	d.bindings[trigger] = &binding{chain: chain, opts: opts}
	d.mu.Unlock()
}

// Trigger ingests one user action for a session. Cancel bindings act
// immediately; everything else is published to the session's trigger stream
// and consumed in order.
func (d *Dispatcher) Trigger(ctx context.Context, sessionID string, ev TriggerEvent) error {
	d.mu.Lock()
	b, ok := d.bindings[ev.Trigger]
	d.mu.Unlock()
	if !ok {
		return errors.Errorf("no chain bound to trigger %q", ev.Trigger)
	}

	sess := d.sessions.GetOrCreate(sessionID)
	if err := d.EnsureRunner(ctx, sess.ID); err != nil {
		return err
	}

	if b.opts.Cancels {
		cancelled := sess.CancelRun()
		log.Debug().Str("component", "chatform").Str("session_id", sess.ID).
			Str("trigger", ev.Trigger).Bool("cancelled", cancelled).Msg("cancel trigger")
		return nil
	}

	payload, err := ev.marshal()
	if err != nil {
		return errors.Wrap(err, "marshal trigger event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return d.bus.Publisher().Publish(eventbus.TopicForSession(sess.ID), msg)
}

// EnsureRunner starts the per-session consumer if it isn't running yet. The
// subscription is established synchronously so triggers published right
// after return are not lost on the in-memory transport.
func (d *Dispatcher) EnsureRunner(ctx context.Context, sessionID string) error {
	d.mu.Lock()
	if _, ok := d.runners[sessionID]; ok {
		d.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(d.baseCtx)
	d.runners[sessionID] = cancel
	d.mu.Unlock()

	sub, owned, err := d.bus.BuildSubscriber(ctx, sessionID)
	if err != nil {
		cancel()
		d.removeRunner(sessionID)
		return errors.Wrap(err, "build subscriber")
	}
	ch, err := sub.Subscribe(runCtx, eventbus.TopicForSession(sessionID))
	if err != nil {
		cancel()
		d.removeRunner(sessionID)
		if owned {
			_ = sub.Close()
		}
		return errors.Wrap(err, "subscribe")
	}

	go d.consume(runCtx, sessionID, ch, sub, owned)
	return nil
}

// StopRunner stops the per-session consumer, if any.
func (d *Dispatcher) StopRunner(sessionID string) {
	d.mu.Lock()
	cancel, ok := d.runners[sessionID]
	if ok {
		delete(d.runners, sessionID)
		delete(d.seen, sessionID)
	}
	d.mu.Unlock()
	if ok {
		cancel()
	}
}

func (d *Dispatcher) removeRunner(sessionID string) {
	d.mu.Lock()
	delete(d.runners, sessionID)
	delete(d.seen, sessionID)
	d.mu.Unlock()
}

func (d *Dispatcher) consume(ctx context.Context, sessionID string, ch <-chan *message.Message, sub message.Subscriber, owned bool) {
	log.Info().Str("component", "chatform").Str("session_id", sessionID).Msg("dispatcher runner started")
	defer func() {
		if owned {
			_ = sub.Close()
		}
		d.removeRunner(sessionID)
		log.Info().Str("component", "chatform").Str("session_id", sessionID).Msg("dispatcher runner stopped")
	}()

	for msg := range ch {
		ev, err := triggerEventFromJSON(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("component", "chatform").Str("session_id", sessionID).Msg("failed to decode trigger event")
			msg.Ack()
			continue
		}
		if d.alreadySeen(sessionID, ev.IdempotencyKey) {
			log.Debug().Str("component", "chatform").Str("session_id", sessionID).
				Str("idempotency_key", ev.IdempotencyKey).Msg("duplicate trigger dropped")
			msg.Ack()
			continue
		}

		d.mu.Lock()
		b, ok := d.bindings[ev.Trigger]
		d.mu.Unlock()
		if !ok || b.opts.Cancels {
			msg.Ack()
			continue
		}

		sess := d.sessions.GetOrCreate(sessionID)
		d.runChain(ctx, sess, b, ev)
		msg.Ack()
	}
}

func (d *Dispatcher) alreadySeen(sessionID, key string) bool {
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	keys, ok := d.seen[sessionID]
	if !ok {
		keys = map[string]struct{}{}
		d.seen[sessionID] = keys
	}
	if _, dup := keys[key]; dup {
		return true
	}
	keys[key] = struct{}{}
	return false
}

// runChain executes one chain run: stop-control enter, steps in order with
// per-step broadcast, stop-control revert on every exit path.
func (d *Dispatcher) runChain(ctx context.Context, sess *Session, b *binding, ev TriggerEvent) {
	runCtx, cancel := context.WithCancel(ctx)
	sess.setRunCancel(cancel)
	defer func() {
		sess.clearRunCancel()
		cancel()
	}()

	chainLog := log.With().
		Str("component", "chatform").
		Str("session_id", sess.ID).
		Str("chain", b.chain.Name()).
		Str("trigger", ev.Trigger).
		Logger()

	emit := func(updates ...Update) {
		if err := d.publisher.PublishUpdates(runCtx, sess.ID, updates...); err != nil &&
			!errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrConnectionPoolAbsent) {
			chainLog.Warn().Err(err).Msg("publish updates failed")
		}
	}

	if sc := b.opts.StopControl; sc.Active() {
		emit(sc.Responding()...)
		defer func() { emit(sc.Idle()...) }()
	}

	for _, step := range b.chain.steps {
		if err := step.Fn(runCtx, sess, ev, emit); err != nil {
			if errors.Is(err, context.Canceled) {
				chainLog.Debug().Str("step", step.Name).Msg("chain run cancelled")
				return
			}
			chainLog.Error().Err(err).Str("step", step.Name).Msg("chain step failed")
			_ = d.publisher.PublishError(context.Background(), sess.ID, err.Error())
			return
		}
	}

	d.mu.Lock()
	onCommit := d.onCommit
	d.mu.Unlock()
	if onCommit != nil {
		onCommit(sess.ID, sess.History())
	}
	chainLog.Debug().Int("steps", b.chain.Len()).Msg("chain run completed")
}

package chatform

import (
	"context"

	"github.com/pkg/errors"
)

// Func computes a single, final response for a message given the history so
// far (excluding the pending turn).
type Func func(ctx context.Context, message string, history []Turn) (string, error)

// StreamFunc produces a lazy, finite sequence of progressively more complete
// responses for a message. The returned channel is single-pass: each receive
// replaces the previous element, it never accumulates. Producers must close
// the channel when done and honor ctx cancellation.
type StreamFunc func(ctx context.Context, message string, history []Turn) (<-chan string, error)

// ResponderKind selects the resolve code path. It is fixed at construction
// and dictates which path every action uses.
type ResponderKind int

const (
	SingleShot ResponderKind = iota
	Streaming
)

func (k ResponderKind) String() string {
	if k == Streaming {
		return "streaming"
	}
	return "single-shot"
}

// Responder normalizes the response function's output, single value or
// incremental sequence, into a uniform stream of history updates.
type Responder struct {
	kind   ResponderKind
	fn     Func
	stream StreamFunc
}

func NewResponder(fn Func, stream StreamFunc) (*Responder, error) {
	if fn == nil && stream == nil {
		return nil, errors.New("responder requires a response function")
	}
	if stream != nil {
		return &Responder{kind: Streaming, fn: fn, stream: stream}, nil
	}
	return &Responder{kind: SingleShot, fn: fn}, nil
}

func (r *Responder) Kind() ResponderKind { return r.kind }

// Resolve computes the response for the pending turn. historyWithPending is
// the session history whose last turn is the pending one; emit is called
// once per produced update with the full replacement history.
//
// For streaming responders each element replaces the pending turn's
// response. A sequence that closes without producing any element records a
// nil response and terminates cleanly. Cancellation between elements leaves
// the last emitted update in place and returns ctx's error.
func (r *Responder) Resolve(ctx context.Context, message string, historyWithPending []Turn, emit func(history []Turn)) ([]Turn, error) {
	if len(historyWithPending) == 0 {
		return nil, errors.New("resolve requires a pending turn")
	}
	history := cloneHistory(historyWithPending[:len(historyWithPending)-1])

	switch r.kind {
	case Streaming:
		return r.resolveStream(ctx, message, history, emit)
	default:
		response, err := r.fn(ctx, message, history)
		if err != nil {
			return nil, errors.Wrap(err, "response function")
		}
		updated := append(history, Turn{User: message, Bot: &response})
		emit(updated)
		return updated, nil
	}
}

func (r *Responder) resolveStream(ctx context.Context, message string, history []Turn, emit func(history []Turn)) ([]Turn, error) {
	ch, err := r.stream(ctx, message, history)
	if err != nil {
		return nil, errors.Wrap(err, "response function")
	}

	var updated []Turn
	replace := func(response *string) {
		updated = append(cloneHistory(history), Turn{User: message, Bot: response})
		emit(updated)
	}

	select {
	case first, ok := <-ch:
		if !ok {
			// Empty sequence: no response produced.
			replace(nil)
			return updated, nil
		}
		replace(&first)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		select {
		case response, ok := <-ch:
			if !ok {
				return updated, nil
			}
			replace(&response)
		case <-ctx.Done():
			return updated, ctx.Err()
		}
	}
}

// ResolveAPI runs the same single-shot/streaming branching as Resolve but
// emits (response, updated history) pairs instead of display-bound history
// updates. history excludes any pending turn.
func (r *Responder) ResolveAPI(ctx context.Context, message string, history []Turn, emit func(response *string, history []Turn)) (*string, []Turn, error) {
	history = cloneHistory(history)

	if r.kind != Streaming {
		response, err := r.fn(ctx, message, history)
		if err != nil {
			return nil, nil, errors.Wrap(err, "response function")
		}
		updated := append(history, Turn{User: message, Bot: &response})
		if emit != nil {
			emit(&response, updated)
		}
		return &response, updated, nil
	}

	ch, err := r.stream(ctx, message, history)
	if err != nil {
		return nil, nil, errors.Wrap(err, "response function")
	}

	var (
		latest  *string
		updated []Turn
	)
	replace := func(response *string) {
		latest = response
		updated = append(cloneHistory(history), Turn{User: message, Bot: response})
		if emit != nil {
			emit(response, updated)
		}
	}

	select {
	case first, ok := <-ch:
		if !ok {
			replace(nil)
			return latest, updated, nil
		}
		replace(&first)
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	for {
		select {
		case response, ok := <-ch:
			if !ok {
				return latest, updated, nil
			}
			replace(&response)
		case <-ctx.Done():
			return latest, updated, ctx.Err()
		}
	}
}

// ResolveExample computes the cached-examples row for one sample input,
// flattening a streaming sequence to its final element.
func (r *Responder) ResolveExample(ctx context.Context, input string) (Turn, error) {
	if r.kind != Streaming {
		response, err := r.fn(ctx, input, nil)
		if err != nil {
			return Turn{}, errors.Wrap(err, "response function")
		}
		return Turn{User: input, Bot: &response}, nil
	}

	ch, err := r.stream(ctx, input, nil)
	if err != nil {
		return Turn{}, errors.Wrap(err, "response function")
	}
	turn := Turn{User: input}
	for {
		select {
		case response, ok := <-ch:
			if !ok {
				return turn, nil
			}
			turn.Bot = &response
		case <-ctx.Done():
			return turn, ctx.Err()
		}
	}
}

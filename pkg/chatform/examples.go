package chatform

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ExampleRow is one configured sample input plus its cached result, if any.
type ExampleRow struct {
	Input string `json:"input"`
	Turn  *Turn  `json:"turn,omitempty"`
}

// Examples pre-populates and serves sample inputs. With caching enabled,
// results are computed once through the responder (streaming sequences
// flattened to their final element) and stored.
type Examples struct {
	inputs    []string
	cache     bool
	store     *ExampleStore
	responder *Responder
}

func newExamples(ctx context.Context, inputs []string, cache bool, store *ExampleStore, responder *Responder) (*Examples, error) {
	e := &Examples{
		inputs:    append([]string(nil), inputs...),
		cache:     cache,
		store:     store,
		responder: responder,
	}
	if !cache {
		return e, nil
	}
	if store == nil {
		return nil, errors.New("example caching requires an example store")
	}
	for _, input := range e.inputs {
		if _, hit, err := store.Get(ctx, input); err != nil {
			return nil, err
		} else if hit {
			continue
		}
		turn, err := responder.ResolveExample(ctx, input)
		if err != nil {
			return nil, errors.Wrapf(err, "cache example %q", input)
		}
		if err := store.Put(ctx, input, turn.Bot); err != nil {
			return nil, err
		}
		log.Debug().Str("component", "chatform").Str("input", input).Msg("example cached")
	}
	return e, nil
}

// Inputs returns the configured sample inputs.
func (e *Examples) Inputs() []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.inputs...)
}

// Cached reports whether results are precomputed.
func (e *Examples) Cached() bool { return e != nil && e.cache }

// Rows returns the sample inputs with cached results attached when caching
// is enabled.
func (e *Examples) Rows(ctx context.Context) ([]ExampleRow, error) {
	if e == nil {
		return nil, nil
	}
	rows := make([]ExampleRow, 0, len(e.inputs))
	for _, input := range e.inputs {
		row := ExampleRow{Input: input}
		if e.cache && e.store != nil {
			response, hit, err := e.store.Get(ctx, input)
			if err != nil {
				return nil, err
			}
			if hit {
				row.Turn = &Turn{User: input, Bot: response}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

package chatform

import "context"

// Emit broadcasts component updates produced by a step. Fast-path steps call
// it once; the streaming resolve step calls it once per produced element.
type Emit func(updates ...Update)

// StepFunc is one handler in a chain. Steps consume fixed inputs (the
// trigger event and session state) and publish fixed outputs through emit.
// Step N's outputs are broadcast before step N+1 starts.
type StepFunc func(ctx context.Context, sess *Session, ev TriggerEvent, emit Emit) error

// Step is a named chain element. Names show up in logs only.
type Step struct {
	Name string
	Fn   StepFunc
}

// Chain is an ordered sequence of steps bound to one or more triggering
// events and executed strictly in order.
type Chain struct {
	name  string
	steps []Step
}

func NewChain(name string) *Chain {
	return &Chain{name: name}
}

// Then appends a step and returns the chain for further sequencing.
func (c *Chain) Then(name string, fn StepFunc) *Chain {
	c.steps = append(c.steps, Step{Name: name, Fn: fn})
	return c
}

func (c *Chain) Name() string { return c.name }

// Len returns the number of steps.
func (c *Chain) Len() int { return len(c.steps) }

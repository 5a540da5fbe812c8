package chatform

// StopController toggles submit/stop button visibility around an in-flight
// streaming response. It is only active when a stop control exists and the
// responder streams; undo and clear never touch it.
type StopController struct {
	hasSubmit bool
	hasStop   bool
	streaming bool
}

func NewStopController(hasSubmit, hasStop, streaming bool) *StopController {
	return &StopController{hasSubmit: hasSubmit, hasStop: hasStop, streaming: streaming}
}

// Active reports whether the controller participates in chain runs at all.
func (c *StopController) Active() bool {
	return c != nil && c.hasStop && c.streaming
}

// Responding returns the updates entering the Responding state: hide submit
// (when present), reveal stop.
func (c *StopController) Responding() []Update {
	if !c.Active() {
		return nil
	}
	if c.hasSubmit {
		return []Update{
			buttonVisibleUpdate(ComponentSubmit, false),
			buttonVisibleUpdate(ComponentStop, true),
		}
	}
	return []Update{buttonVisibleUpdate(ComponentStop, true)}
}

// Idle returns the updates reverting to the Idle state. Natural completion
// and explicit cancellation both go through here, so controls always land in
// the same visible state.
func (c *StopController) Idle() []Update {
	if !c.Active() {
		return nil
	}
	if c.hasSubmit {
		return []Update{
			buttonVisibleUpdate(ComponentSubmit, true),
			buttonVisibleUpdate(ComponentStop, false),
		}
	}
	return []Update{buttonVisibleUpdate(ComponentStop, false)}
}

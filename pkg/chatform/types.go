package chatform

import "encoding/json"

// Turn is one (user message, bot response) pair in a session's history.
// Bot is nil while the turn is pending (user message shown, answer not yet
// computed).
type Turn struct {
	User string  `json:"user"`
	Bot  *string `json:"bot"`
}

// cloneHistory copies a history slice so emitted updates never alias the
// session's mutable state.
func cloneHistory(h []Turn) []Turn {
	if h == nil {
		return nil
	}
	out := make([]Turn, len(h))
	copy(out, h)
	return out
}

// Well-known trigger identifiers. Triggers name the (component, event) pair
// that fired; multiple triggers may be bound to the same chain.
const (
	TriggerTextboxSubmit = "textbox.submit"
	TriggerSubmitClick   = "submit_btn.click"
	TriggerRetryClick    = "retry_btn.click"
	TriggerUndoClick     = "undo_btn.click"
	TriggerClearClick    = "clear_btn.click"
	TriggerStopClick     = "stop_btn.click"
)

// TriggerEvent is one user action delivered to the dispatcher.
type TriggerEvent struct {
	Trigger string `json:"trigger"`
	// Text carries the textbox content for submit triggers.
	Text string `json:"text,omitempty"`
	// IdempotencyKey deduplicates redelivered trigger messages.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (ev TriggerEvent) marshal() ([]byte, error) {
	return json.Marshal(ev)
}

func triggerEventFromJSON(b []byte) (TriggerEvent, error) {
	var ev TriggerEvent
	err := json.Unmarshal(b, &ev)
	return ev, err
}

// Update is a property patch for one component, broadcast to attached
// clients after the step that produced it.
type Update struct {
	ComponentID string         `json:"component_id"`
	Props       map[string]any `json:"props"`
}

package chatform

import (
	"fmt"

	"github.com/pkg/errors"
)

// Component IDs used by the default layout.
const (
	ComponentTextbox  = "textbox"
	ComponentChatView = "chatview"
	ComponentSubmit   = "submit_btn"
	ComponentStop     = "stop_btn"
	ComponentRetry    = "retry_btn"
	ComponentUndo     = "undo_btn"
	ComponentClear    = "clear_btn"
)

// Component is a typed property bag in the rendered tree. Behavior lives in
// the dispatcher and chains; components only carry display state.
type Component struct {
	ID    string         `json:"id"`
	Type  string         `json:"type"`
	Props map[string]any `json:"props"`
}

// Textbox is the message input component.
type Textbox struct {
	Placeholder string
}

func (t *Textbox) component() Component {
	placeholder := "Type a message..."
	if t != nil && t.Placeholder != "" {
		placeholder = t.Placeholder
	}
	return Component{
		ID:   ComponentTextbox,
		Type: "textbox",
		Props: map[string]any{
			"value":       "",
			"placeholder": placeholder,
		},
	}
}

// ChatView displays the turn history.
type ChatView struct {
	Label string
}

func (c *ChatView) component() Component {
	label := "Chatbot"
	if c != nil && c.Label != "" {
		label = c.Label
	}
	return Component{
		ID:   ComponentChatView,
		Type: "chatview",
		Props: map[string]any{
			"label": label,
			"turns": []Turn{},
		},
	}
}

// Button is a prebuilt button component.
type Button struct {
	Label   string
	Variant string
	Visible bool
}

// ButtonSpec configures one of the orchestrator's action buttons. The zero
// value means "use the default label". Set Omit to leave the button out of
// the layout entirely; set Button to supply a prebuilt component.
type ButtonSpec struct {
	Label  string
	Button *Button
	Omit   bool
}

// resolve validates the spec and returns the button to render, or nil when
// the button is omitted.
func (s ButtonSpec) resolve(name, defaultLabel, variant string, visible bool) (*Button, error) {
	if s.Omit {
		if s.Button != nil || s.Label != "" {
			return nil, errors.Errorf("the %s parameter must be a button, a label, or omitted, not both omitted and set", name)
		}
		return nil, nil
	}
	if s.Button != nil {
		if s.Label != "" {
			return nil, errors.Errorf("the %s parameter must be a button, a label, or omitted, not both a button and a label", name)
		}
		return s.Button, nil
	}
	label := s.Label
	if label == "" {
		label = defaultLabel
	}
	return &Button{Label: label, Variant: variant, Visible: visible}, nil
}

func buttonComponent(id string, b *Button) Component {
	return Component{
		ID:   id,
		Type: "button",
		Props: map[string]any{
			"label":   b.Label,
			"variant": b.Variant,
			"visible": b.Visible,
		},
	}
}

// layout is the rendered component tree for one orchestrator.
type layout struct {
	components []Component
	byID       map[string]Component
}

func newLayout(components ...Component) *layout {
	l := &layout{byID: map[string]Component{}}
	for _, c := range components {
		l.components = append(l.components, c)
		l.byID[c.ID] = c
	}
	return l
}

func (l *layout) has(id string) bool {
	_, ok := l.byID[id]
	return ok
}

// Components returns the rendered tree in layout order.
func (l *layout) Components() []Component {
	out := make([]Component, len(l.components))
	copy(out, l.components)
	return out
}

func textboxUpdate(value string) Update {
	return Update{ComponentID: ComponentTextbox, Props: map[string]any{"value": value}}
}

func chatViewUpdate(turns []Turn) Update {
	if turns == nil {
		turns = []Turn{}
	}
	return Update{ComponentID: ComponentChatView, Props: map[string]any{"turns": turns}}
}

func buttonVisibleUpdate(id string, visible bool) Update {
	return Update{ComponentID: id, Props: map[string]any{"visible": visible}}
}

func markdownComponent(id, body string) Component {
	return Component{
		ID:    id,
		Type:  "markdown",
		Props: map[string]any{"body": body},
	}
}

func titleMarkdown(title string) Component {
	return markdownComponent("title", fmt.Sprintf("# %s", title))
}

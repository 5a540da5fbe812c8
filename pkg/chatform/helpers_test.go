package chatform

import (
	"encoding/json"
	"sync"
	"time"
)

// recordingConn captures broadcast frames for assertions.
type recordingConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newRecordingConn() *recordingConn {
	return &recordingConn{}
}

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *recordingConn) SetWriteDeadline(_ time.Time) error { return nil }

func (c *recordingConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

type frameEvent struct {
	Type    string   `json:"type"`
	Updates []Update `json:"updates"`
	Error   string   `json:"error"`
}

type frameEnvelope struct {
	UI    bool       `json:"ui"`
	Event frameEvent `json:"event"`
}

func (c *recordingConn) envelopes() []frameEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]frameEnvelope, 0, len(c.frames))
	for _, b := range c.frames {
		var env frameEnvelope
		if err := json.Unmarshal(b, &env); err != nil {
			continue
		}
		out = append(out, env)
	}
	return out
}

// updatesFor collects all recorded prop patches for a component, in order.
func (c *recordingConn) updatesFor(componentID string) []map[string]any {
	var out []map[string]any
	for _, env := range c.envelopes() {
		if env.Event.Type != "component.update" {
			continue
		}
		for _, u := range env.Event.Updates {
			if u.ComponentID == componentID {
				out = append(out, u.Props)
			}
		}
	}
	return out
}

// lastVisible returns the most recent "visible" prop recorded for a
// component, with ok reporting whether any was seen.
func (c *recordingConn) lastVisible(componentID string) (visible, ok bool) {
	for _, props := range c.updatesFor(componentID) {
		if v, has := props["visible"].(bool); has {
			visible = v
			ok = true
		}
	}
	return visible, ok
}

// lastTextboxValue returns the most recent textbox value update.
func (c *recordingConn) lastTextboxValue() (string, bool) {
	var (
		value string
		ok    bool
	)
	for _, props := range c.updatesFor(ComponentTextbox) {
		if v, has := props["value"].(string); has {
			value = v
			ok = true
		}
	}
	return value, ok
}

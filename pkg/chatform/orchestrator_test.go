package chatform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func echoFunc(_ context.Context, m string, _ []Turn) (string, error) { return m, nil }

func TestNew_RequiresResponseFunction(t *testing.T) {
	_, err := New(Config{})
	require.ErrorContains(t, err, "response function is required")
}

func TestNew_BothFunctionsPrefersStreaming(t *testing.T) {
	o, err := New(Config{
		Func:   echoFunc,
		Stream: sliceStream("a"),
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)
	require.Equal(t, Streaming, o.Responder().Kind())
}

func TestNew_InvalidButtonSpecIsFatal(t *testing.T) {
	_, err := New(Config{
		Func:         echoFunc,
		SubmitButton: ButtonSpec{Label: "Send", Button: &Button{Label: "Send"}},
	})
	require.ErrorContains(t, err, "submit_btn")

	_, err = New(Config{
		Func:       echoFunc,
		StopButton: ButtonSpec{Omit: true, Label: "Stop"},
	})
	require.ErrorContains(t, err, "stop_btn")
}

func TestNew_DefaultLayout(t *testing.T) {
	o, err := New(Config{Func: echoFunc, Title: "Echo Bot"})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	ids := map[string]bool{}
	for _, c := range o.Components() {
		ids[c.ID] = true
	}
	for _, want := range []string{"title", ComponentChatView, ComponentTextbox, ComponentSubmit, ComponentStop, ComponentRetry, ComponentUndo, ComponentClear} {
		require.True(t, ids[want], "missing component %s", want)
	}
}

func TestNew_OmittedButtonsLeaveTriggersUnbound(t *testing.T) {
	o, err := New(Config{
		Func:        echoFunc,
		RetryButton: ButtonSpec{Omit: true},
		UndoButton:  ButtonSpec{Omit: true},
		ClearButton: ButtonSpec{Omit: true},
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	err = o.Trigger(context.Background(), "s1", TriggerEvent{Trigger: TriggerRetryClick})
	require.ErrorContains(t, err, "no chain bound")
}

func TestNew_StopControlInactiveForSingleShot(t *testing.T) {
	o, err := New(Config{Func: echoFunc})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	require.False(t, o.stopCtl.Active())
	err = o.Trigger(context.Background(), "s1", TriggerEvent{Trigger: TriggerStopClick})
	require.ErrorContains(t, err, "no chain bound")
}

func TestNew_StopControlActiveForStreaming(t *testing.T) {
	o, err := New(Config{Stream: sliceStream("a")})
	require.NoError(t, err)
	t.Cleanup(o.Close)
	require.True(t, o.stopCtl.Active())
}

func TestChat_EchoOnEmptyHistory(t *testing.T) {
	o, err := New(Config{Func: echoFunc})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	response, history, err := o.Chat(context.Background(), "hi", nil)
	require.NoError(t, err)
	require.Equal(t, strptr("hi"), response)
	require.Equal(t, []Turn{{User: "hi", Bot: strptr("hi")}}, history)
}

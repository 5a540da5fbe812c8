package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatform/pkg/chatform"
)

// echoBot returns the message verbatim.
func echoBot(_ context.Context, message string, _ []chatform.Turn) (string, error) {
	return message, nil
}

// streamEchoBot replays the message word by word, each element a longer
// prefix of the final response.
func streamEchoBot(ctx context.Context, message string, history []chatform.Turn) (<-chan string, error) {
	out := make(chan string)
	go func() {
		defer close(out)
		words := strings.Fields(fmt.Sprintf("You said (turn %d): %s", len(history)+1, message))
		var sb strings.Builder
		for _, w := range words {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(w)
			select {
			case out <- sb.String():
			case <-ctx.Done():
				return
			}
			select {
			case <-time.After(80 * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func botFunctions(kind string) (chatform.Func, chatform.StreamFunc, error) {
	switch kind {
	case "echo":
		return echoBot, nil, nil
	case "", "stream-echo":
		return nil, streamEchoBot, nil
	default:
		return nil, nil, errors.Errorf("unknown bot %q (want echo or stream-echo)", kind)
	}
}

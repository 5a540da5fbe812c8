package chatform

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// IdempotencyKeyFromRequest picks the trigger idempotency key from headers,
// falling back to the body-supplied key, then to a fresh uuid.
func IdempotencyKeyFromRequest(r *http.Request, bodyKey string) string {
	var key string
	if r != nil {
		key = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" {
			key = strings.TrimSpace(r.Header.Get("X-Idempotency-Key"))
		}
	}
	if key == "" {
		key = strings.TrimSpace(bodyKey)
	}
	if key == "" {
		key = uuid.NewString()
	}
	return key
}

// Package requestid generates and carries the per-request correlation id.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// MaxLen bounds ids accepted from clients.
const MaxLen = 128

const prefix = "req_"

type ctxKey struct{}

// New returns "req_" followed by a UUIDv7. Ids sort by creation time.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return prefix + uuid.NewString()
	}
	return prefix + id.String()
}

// Accept returns the client supplied id when it is printable ASCII no longer
// than MaxLen, and a fresh id otherwise.
func Accept(incoming string) string {
	if incoming == "" || len(incoming) > MaxLen {
		return New()
	}
	for i := 0; i < len(incoming); i++ {
		if c := incoming[i]; c < 0x21 || c > 0x7e {
			return New()
		}
	}
	return incoming
}

// GetRequestID returns the id stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

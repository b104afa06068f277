package ports

import (
	"context"
	"time"
)

// Cache stores small derived values, such as the summary of the last link
// rebuild, keyed by string. A zero ttl keeps the entry until overwritten.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

package ports

import (
	"context"

	"stockbot/internal/domain"
)

// Notifier consumes the structured events the core produces. Implementations
// must be non-blocking from the caller's perspective or fail fast; the
// execution loop logs publish failures and continues.
type Notifier interface {
	Publish(ctx context.Context, event domain.Event) error
}

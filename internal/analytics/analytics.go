// Package analytics publishes identify events for signed-in visitors.
package analytics

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"horizon-web/internal/auth"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Identifier associates the current visitor with an identity.
type Identifier interface {
	Identify(ctx context.Context, id auth.Identity) error
}

// StreamIdentifier appends identify events to a Redis stream consumed by the
// analytics pipeline.
type StreamIdentifier struct {
	client  goredis.Cmdable
	stream  string
	maxLen  int64
	timeout time.Duration
	now     func() time.Time
}

func NewStreamIdentifier(client goredis.Cmdable, stream string) *StreamIdentifier {
	return &StreamIdentifier{
		client:  client,
		stream:  stream,
		maxLen:  100000,
		timeout: 2 * time.Second,
		now:     time.Now,
	}
}

// Identify publishes one identify event.
func (s *StreamIdentifier) Identify(ctx context.Context, id auth.Identity) error {
	if id.ID == "" {
		return errors.New("analytics: identity without id")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	values := map[string]any{
		"event_id":    uuid.NewString(),
		"type":        "identify",
		"id":          id.ID,
		"email":       id.Email,
		"name":        id.Name,
		"occurred_at": s.now().UTC().Format(time.RFC3339),
	}
	if !id.CreatedAt.IsZero() {
		values["created_at"] = id.CreatedAt.UTC().Format(time.RFC3339)
	}

	return s.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
}

// Hook adapts an Identifier to a session-resolved callback. Failures are
// logged and never reach the caller.
func Hook(identifier Identifier, logger *slog.Logger) func(ctx context.Context, id auth.Identity) {
	if identifier == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, id auth.Identity) {
		if err := identifier.Identify(ctx, id); err != nil {
			logger.WarnContext(ctx, "analytics identify failed", "principal_id", id.ID, "error", err)
		}
	}
}

package notify

import (
	"context"

	"stockbot/internal/domain"
	"stockbot/internal/ports"
)

// LogNotifier writes events to the application logger. Used when no NATS
// server is configured (typically paper trading).
type LogNotifier struct {
	logger ports.Logger
}

// NewLog returns a notifier backed by the given logger.
func NewLog(logger ports.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Publish logs the event at info level.
func (n *LogNotifier) Publish(ctx context.Context, event domain.Event) error {
	fields := map[string]interface{}{
		"eventType": string(event.Type),
		"at":        event.At,
	}
	if event.StockCode != "" {
		fields["stockCode"] = event.StockCode
	}
	for k, v := range event.Fields {
		fields[k] = v
	}
	n.logger.Info(ctx, event.Message, fields)
	return nil
}

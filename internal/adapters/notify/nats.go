// Package notify provides Notifier implementations for trade and lifecycle
// events. The NATS notifier publishes JSON events to per-type subjects so
// dashboards and alerting consumers can subscribe selectively.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"stockbot/internal/domain"
	"stockbot/internal/ports"
)

// NATSConfig holds connection settings for the NATS notifier.
type NATSConfig struct {
	URL           string // e.g. nats://127.0.0.1:4222
	SubjectPrefix string // default "stockbot.events"
	Logger        ports.Logger
}

// NATSNotifier publishes events to a NATS server.
type NATSNotifier struct {
	conn   *nats.Conn
	prefix string
	logger ports.Logger
}

// NewNATS connects to the NATS server. Reconnection is delegated to the NATS
// client's built-in retry handling.
func NewNATS(cfg NATSConfig) (*NATSNotifier, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for NATS notifier")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: NATS URL must be set", ports.ErrConfigurationError)
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "stockbot.events"
	}

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				cfg.Logger.Warn(context.Background(), "NATS connection lost", map[string]interface{}{"error": err.Error()})
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			cfg.Logger.Info(context.Background(), "NATS connection restored", map[string]interface{}{"url": nc.ConnectedUrl()})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to NATS at %s: %v", ports.ErrConnectionFailed, cfg.URL, err)
	}

	return &NATSNotifier{conn: conn, prefix: prefix, logger: cfg.Logger}, nil
}

// Publish sends the event as JSON to "<prefix>.<event type>".
func (n *NATSNotifier) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	subject := fmt.Sprintf("%s.%s", n.prefix, event.Type)
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("%w: publish to %s: %v", ports.ErrConnectionFailed, subject, err)
	}
	return nil
}

// Close flushes pending publishes and drops the connection.
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		_ = n.conn.Flush()
		n.conn.Close()
	}
}

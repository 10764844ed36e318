// Package monitor provides a periodic connection self-check with a bounded
// number of reconnect attempts. It never auto-retries indefinitely: after the
// attempts are exhausted it emits a manual-intervention event and stops
// trying.
package monitor

import (
	"context"
	"fmt"
	"time"

	"stockbot/internal/domain"
	"stockbot/internal/ports"
)

// Config holds health-check parameters.
type Config struct {
	CheckInterval        time.Duration // default 30s
	ReconnectDelay       time.Duration // default 5s
	MaxReconnectAttempts int           // default 3
}

func (c *Config) applyDefaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 3
	}
}

// HealthChecker samples broker connectivity on a fixed interval.
type HealthChecker struct {
	cfg      Config
	gateway  ports.BrokerGateway
	logger   ports.Logger
	notifier ports.Notifier

	gaveUp bool
}

// NewHealthChecker creates the periodic connection monitor.
func NewHealthChecker(cfg Config, gateway ports.BrokerGateway, logger ports.Logger, notifier ports.Notifier) (*HealthChecker, error) {
	if gateway == nil || logger == nil || notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for health checker")
	}
	cfg.applyDefaults()
	return &HealthChecker{cfg: cfg, gateway: gateway, logger: logger, notifier: notifier}, nil
}

// Run checks until the context is cancelled.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.check(ctx)
		}
	}
}

func (h *HealthChecker) check(ctx context.Context) {
	if h.gaveUp {
		// Manual intervention required; keep observing but stop healing.
		if err := h.gateway.Ping(ctx); err == nil {
			h.gaveUp = false
			h.logger.Info(ctx, "Broker connection restored externally")
		}
		return
	}

	if err := h.gateway.Ping(ctx); err == nil {
		return
	}

	h.logger.Warn(ctx, "Broker connection check failed, attempting reconnect", map[string]interface{}{
		"maxAttempts": h.cfg.MaxReconnectAttempts,
	})
	for attempt := 1; attempt <= h.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(h.cfg.ReconnectDelay):
		}
		if err := h.gateway.Login(ctx); err != nil {
			h.logger.Error(ctx, err, "Reconnect attempt failed", map[string]interface{}{
				"attempt": attempt,
			})
			continue
		}
		h.logger.Info(ctx, "Broker reconnected", map[string]interface{}{"attempt": attempt})
		return
	}

	h.gaveUp = true
	h.logger.Error(ctx, ports.ErrConnectionFailed, "Reconnect attempts exhausted, manual intervention required")
	if err := h.notifier.Publish(ctx, domain.Event{
		Type:    domain.EventRisk,
		Message: "broker connection lost, manual intervention required",
		At:      time.Now(),
	}); err != nil {
		h.logger.Warn(ctx, "Failed to publish connection-lost event", map[string]interface{}{"error": err.Error()})
	}
}

package domain

import "time"

// EventType classifies outbound notification events. Rendering (toast, sound,
// log line) is the notifier collaborator's responsibility; the core only emits
// plain data events.
type EventType string

const (
	EventTradeExecuted EventType = "trade-executed"
	EventSurgeDetected EventType = "surge-detected"
	EventRisk          EventType = "risk-event"
	EventLifecycle     EventType = "system-lifecycle"
)

// Event is one structured notification emitted by the core.
type Event struct {
	Type      EventType              `json:"type"`
	StockCode string                 `json:"stockCode,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	At        time.Time              `json:"at"`
}

package app

import (
	"time"

	"stockbot/internal/domain"
)

// codeState is the per-stock execution state machine:
// IDLE -> ENTRY_PENDING -> HOLDING -> EXIT_PENDING -> IDLE.
type codeState int

const (
	stateIdle codeState = iota
	stateEntryPending
	stateHolding
	stateExitPending
)

func (s codeState) String() string {
	switch s {
	case stateIdle:
		return "IDLE"
	case stateEntryPending:
		return "ENTRY_PENDING"
	case stateHolding:
		return "HOLDING"
	case stateExitPending:
		return "EXIT_PENDING"
	default:
		return "UNKNOWN"
	}
}

// codeRuntime is the execution loop's per-stock bookkeeping. Owned exclusively
// by the single consumer goroutine; no locking needed.
type codeRuntime struct {
	stockCode string
	name      string
	state     codeState
	prices    []float64 // rolling close window for the strategy

	// pending is non-nil while state is ENTRY_PENDING or EXIT_PENDING. While
	// set, further signals for this code are ignored (re-entrancy rule).
	pending         *domain.PendingOrder
	pendingSince    time.Time
	pendingExit     domain.ExitReason
	reconcileWarned bool // pending-timeout warning emitted once

	lastSnapshot time.Time // last persisted tick snapshot
}

// pushPrice appends a price to the rolling window, trimming to cap.
func (rt *codeRuntime) pushPrice(price float64, cap int) {
	rt.prices = append(rt.prices, price)
	if len(rt.prices) > cap {
		rt.prices = rt.prices[len(rt.prices)-cap:]
	}
}

package domain

import "time"

// SurgeCandidate is a stock whose short-term price change and volume both
// exceed the configured thresholds simultaneously. Candidates are discarded
// once handed to the admission gate; a re-detection after the cooldown window
// is a new instance.
type SurgeCandidate struct {
	StockCode   string
	Name        string
	ChangePct   float64 // Intraday change percentage at detection time
	VolumeRatio float64 // Current volume / recent average volume
	Price       float64 // Price at detection time
	DetectedAt  time.Time
}

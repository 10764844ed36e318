// Package surge polls the top-value-traded list for sudden price/volume
// spikes and feeds candidates into the execution loop through a
// single-candidate admission gate.
package surge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"stockbot/internal/domain"
	"stockbot/internal/ports"
)

// Config holds surge-detection parameters. A stock is flagged only when both
// thresholds are exceeded simultaneously.
type Config struct {
	PollInterval   time.Duration // default 5s
	TopN           int           // size of the value-traded list to scan (default 30)
	MinChangePct   float64       // e.g. 3.0
	MinVolumeRatio float64       // current volume / recent average, e.g. 2.0
	Cooldown       time.Duration // suppress re-detection of the same code (default 10m)
	AutoApprove    bool          // unattended mode: admit without asking
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.TopN <= 0 {
		c.TopN = 30
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 10 * time.Minute
	}
}

// Capacity is the risk manager's position-count pre-check consulted before a
// candidate is admitted.
type Capacity interface {
	HasCapacity() bool
}

// AdmitFunc hands an approved candidate to the execution loop and blocks
// until registration plus entry submission have completed.
type AdmitFunc func(ctx context.Context, cand domain.SurgeCandidate) error

// ApproveFunc is the manual-approval callback used when AutoApprove is off.
// Returning false drops the candidate for this cycle.
type ApproveFunc func(cand domain.SurgeCandidate) bool

// Detector scans for surge candidates on a fixed interval.
type Detector struct {
	cfg      Config
	gateway  ports.BrokerGateway
	capacity Capacity
	admit    AdmitFunc
	approve  ApproveFunc // nil unless manual mode
	logger   ports.Logger
	notifier ports.Notifier

	// cooldown remembers codes that reached the admission gate so the same
	// spike is not re-admitted every poll cycle.
	cooldown *gocache.Cache

	// processing is the single-candidate admission gate: while one candidate
	// is being registered and submitted, every other candidate is deferred
	// (dropped for this cycle), never processed concurrently.
	processing atomic.Bool
}

// NewDetector creates a surge detector. approve may be nil when
// cfg.AutoApprove is true.
func NewDetector(cfg Config, gateway ports.BrokerGateway, capacity Capacity, admit AdmitFunc, approve ApproveFunc, logger ports.Logger, notifier ports.Notifier) (*Detector, error) {
	if gateway == nil || capacity == nil || admit == nil || logger == nil || notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for surge detector")
	}
	if cfg.MinChangePct <= 0 || cfg.MinVolumeRatio <= 0 {
		return nil, fmt.Errorf("surge thresholds must be positive")
	}
	if !cfg.AutoApprove && approve == nil {
		return nil, fmt.Errorf("manual mode requires an approval callback")
	}
	cfg.applyDefaults()
	return &Detector{
		cfg:      cfg,
		gateway:  gateway,
		capacity: capacity,
		admit:    admit,
		approve:  approve,
		logger:   logger,
		notifier: notifier,
		cooldown: gocache.New(cfg.Cooldown, cfg.Cooldown*2),
	}, nil
}

// Run polls until the context is cancelled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info(ctx, "Surge detector started", map[string]interface{}{
		"pollInterval": d.cfg.PollInterval.String(),
		"minChangePct": d.cfg.MinChangePct,
		"minVolRatio":  d.cfg.MinVolumeRatio,
		"autoApprove":  d.cfg.AutoApprove,
	})
	for {
		select {
		case <-ctx.Done():
			d.logger.Info(ctx, "Surge detector stopped")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

// poll runs one detection cycle. At most one candidate is admitted per cycle;
// the rest are deferred and may be re-detected next cycle.
func (d *Detector) poll(ctx context.Context) {
	stats, err := d.gateway.TopValueTraded(ctx, d.cfg.TopN)
	if err != nil {
		d.logger.Error(ctx, err, "Failed to fetch top-value-traded list")
		return
	}

	candidates := d.scan(ctx, stats)
	if len(candidates) == 0 {
		return
	}

	admitted := false
	for _, cand := range candidates {
		if admitted {
			d.logger.Debug(ctx, "Deferring surge candidate, one already admitted this cycle", map[string]interface{}{
				"stockCode": cand.StockCode,
			})
			continue
		}
		if d.tryAdmit(ctx, cand) {
			admitted = true
		}
	}
}

// scan flags every stock whose change percentage AND volume ratio both exceed
// the thresholds and that is not in cooldown. Cooldown is applied in tryAdmit,
// not here: a candidate deferred because another occupied this cycle's
// admission slot stays detectable next cycle.
func (d *Detector) scan(ctx context.Context, stats []domain.MarketStat) []domain.SurgeCandidate {
	now := time.Now()
	var out []domain.SurgeCandidate
	for _, st := range stats {
		if st.AvgVolume <= 0 {
			continue
		}
		ratio := float64(st.Volume) / float64(st.AvgVolume)
		if st.ChangePct < d.cfg.MinChangePct || ratio < d.cfg.MinVolumeRatio {
			continue
		}
		if _, seen := d.cooldown.Get(st.StockCode); seen {
			continue
		}

		cand := domain.SurgeCandidate{
			StockCode:   st.StockCode,
			Name:        st.Name,
			ChangePct:   st.ChangePct,
			VolumeRatio: ratio,
			Price:       st.Price,
			DetectedAt:  now,
		}
		out = append(out, cand)

		d.logger.Info(ctx, "Surge detected", map[string]interface{}{
			"stockCode": st.StockCode, "name": st.Name,
			"changePct": st.ChangePct, "volumeRatio": ratio,
		})
		if err := d.notifier.Publish(ctx, domain.Event{
			Type:      domain.EventSurgeDetected,
			StockCode: st.StockCode,
			Message:   "surge detected",
			At:        now,
			Fields:    map[string]interface{}{"changePct": st.ChangePct, "volumeRatio": ratio},
		}); err != nil {
			d.logger.Warn(ctx, "Failed to publish surge event", map[string]interface{}{"error": err.Error()})
		}
	}
	return out
}

// tryAdmit pushes one candidate through the admission gate. Returns true when
// the candidate occupied the gate (even if the loop ultimately rejected it):
// the cycle's single admission slot is spent either way.
func (d *Detector) tryAdmit(ctx context.Context, cand domain.SurgeCandidate) bool {
	if !d.capacity.HasCapacity() {
		d.logger.Warn(ctx, "Surge candidate rejected, open-position cap reached", map[string]interface{}{
			"stockCode": cand.StockCode,
		})
		return false
	}
	if !d.cfg.AutoApprove {
		if !d.approve(cand) {
			d.logger.Info(ctx, "Surge candidate not approved", map[string]interface{}{
				"stockCode": cand.StockCode,
			})
			return false
		}
	}
	if !d.processing.CompareAndSwap(false, true) {
		// A previous admission is still in flight; defer this candidate.
		d.logger.Debug(ctx, "Admission gate busy, deferring surge candidate", map[string]interface{}{
			"stockCode": cand.StockCode,
		})
		return false
	}
	defer d.processing.Store(false)

	// The candidate now occupies the gate; cool it down whether or not the
	// loop accepts it, so one spike cannot hammer the loop every cycle.
	d.cooldown.Set(cand.StockCode, time.Now(), gocache.DefaultExpiration)

	if err := d.admit(ctx, cand); err != nil {
		d.logger.Warn(ctx, "Surge candidate rejected by execution loop", map[string]interface{}{
			"stockCode": cand.StockCode, "reason": err.Error(),
		})
		return true
	}
	d.logger.Info(ctx, "Surge candidate admitted", map[string]interface{}{
		"stockCode": cand.StockCode,
	})
	return true
}

// Package anomaly screens step deltas for implausible readings. A flagged
// delta never blocks accrual; it is surfaced through metrics and the
// observation note so operators can investigate.
package anomaly

import (
	"math"
	"sync"
	"time"

	"github.com/letsbehealthy/stepcoin/internal/infra/observability"
)

// ProfileExpiryDays is how long an inactive user profile is retained.
const ProfileExpiryDays = 90

// MaxConsecutiveAnomalies escalates severity once reached.
const MaxConsecutiveAnomalies = 3

// ─── Types ──────────────────────────────────────────────────────────────────

// FlagType classifies why a delta was flagged.
type FlagType int

const (
	FlagNone FlagType = iota
	FlagHardCap
	FlagZScoreOutlier
)

func (f FlagType) String() string {
	switch f {
	case FlagNone:
		return "NONE"
	case FlagHardCap:
		return "HARD_CAP"
	case FlagZScoreOutlier:
		return "ZSCORE_OUTLIER"
	default:
		return "UNKNOWN"
	}
}

// Severity grades a flag.
type Severity int

const (
	SevInfo Severity = iota
	SevWarning
	SevCritical
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Observation is one step delta about to be credited.
type Observation struct {
	UserID    string
	Delta     int64
	Timestamp time.Time
}

// Result is the screening verdict for one observation.
type Result struct {
	Flagged  bool
	Type     FlagType
	Severity Severity
	ZScore   float64
}

// UserProfile holds running delta statistics for one user, maintained with
// Welford's online algorithm.
type UserProfile struct {
	UserID string

	DeltaCount int64
	DeltaMean  float64
	deltaM2    float64

	ConsecutiveAnomalies int
	LastSeen             time.Time
}

// DeltaStddev returns the sample standard deviation of observed deltas.
func (p *UserProfile) DeltaStddev() float64 {
	if p.DeltaCount < 2 {
		return 0
	}
	return math.Sqrt(p.deltaM2 / float64(p.DeltaCount-1))
}

func (p *UserProfile) observe(delta float64) {
	p.DeltaCount++
	d := delta - p.DeltaMean
	p.DeltaMean += d / float64(p.DeltaCount)
	p.deltaM2 += d * (delta - p.DeltaMean)
}

// ─── Detector ───────────────────────────────────────────────────────────────

// DetectorConfig tunes the screen.
type DetectorConfig struct {
	// HardCapDelta flags any single delta above this count outright.
	// 50000 steps between observations is beyond plausible human walking.
	HardCapDelta int64

	// ZScoreThreshold flags deltas this many standard deviations above a
	// user's established mean.
	ZScoreThreshold float64

	// MinSamples is how many deltas build a baseline before z-scores apply.
	MinSamples int64
}

// DefaultDetectorConfig returns the production thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		HardCapDelta:    50000,
		ZScoreThreshold: 4.0,
		MinSamples:      10,
	}
}

// Detector screens observations against per-user baselines.
type Detector struct {
	cfg DetectorConfig

	mu             sync.Mutex
	profiles       map[string]*UserProfile
	totalAnomalies int64

	// injectable for tests
	now func() time.Time
}

// NewDetector builds a detector with the given thresholds.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{
		cfg:      cfg,
		profiles: make(map[string]*UserProfile),
		now:      time.Now,
	}
}

// Analyze screens one observation, updates the user's baseline, and returns
// the verdict. Flagged deltas still feed the baseline so a user whose real
// activity shifts is not flagged forever.
func (d *Detector) Analyze(obs Observation) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.profiles[obs.UserID]
	if !ok {
		p = &UserProfile{UserID: obs.UserID}
		d.profiles[obs.UserID] = p
	}
	p.LastSeen = d.now()

	result := d.screen(p, obs)
	p.observe(float64(obs.Delta))

	if result.Flagged {
		p.ConsecutiveAnomalies++
		if p.ConsecutiveAnomalies >= MaxConsecutiveAnomalies {
			result.Severity = SevCritical
		}
		d.totalAnomalies++
		observability.AnomalousDeltas.WithLabelValues(result.Type.String()).Inc()
	} else {
		p.ConsecutiveAnomalies = 0
	}
	return result
}

func (d *Detector) screen(p *UserProfile, obs Observation) Result {
	if obs.Delta > d.cfg.HardCapDelta {
		return Result{Flagged: true, Type: FlagHardCap, Severity: SevWarning}
	}

	if p.DeltaCount >= d.cfg.MinSamples {
		stddev := p.DeltaStddev()
		if stddev > 0 {
			z := (float64(obs.Delta) - p.DeltaMean) / stddev
			if z > d.cfg.ZScoreThreshold {
				return Result{Flagged: true, Type: FlagZScoreOutlier, Severity: SevWarning, ZScore: z}
			}
		}
	}
	return Result{}
}

// GetProfile returns a copy of the user's profile, or nil before any
// observation.
func (d *Detector) GetProfile(userID string) *UserProfile {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.profiles[userID]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// ProfileCount returns how many users have baselines.
func (d *Detector) ProfileCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.profiles)
}

// Stats summarizes detector state.
type Stats struct {
	ProfileCount   int   `json:"profile_count"`
	TotalAnomalies int64 `json:"total_anomalies"`
}

// Stats returns a snapshot of detector counters.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		ProfileCount:   len(d.profiles),
		TotalAnomalies: d.totalAnomalies,
	}
}

// CleanupStaleProfiles drops baselines for users not seen within the expiry
// window and reports how many were removed.
func (d *Detector) CleanupStaleProfiles() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.now().Add(-time.Duration(ProfileExpiryDays) * 24 * time.Hour)
	removed := 0
	for id, p := range d.profiles {
		if p.LastSeen.Before(cutoff) {
			delete(d.profiles, id)
			removed++
		}
	}
	return removed
}

package daemon

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/letsbehealthy/stepcoin/internal/app/anomaly"
	"github.com/letsbehealthy/stepcoin/internal/app/ledger"
	"github.com/letsbehealthy/stepcoin/internal/domain"
	"github.com/letsbehealthy/stepcoin/internal/infra/observability"
)

// Poller periodically queries the step source for each registered user and
// feeds new observations into the ledger. It is the server-side path for
// users whose health platform supports pull integrations; the HTTP API is
// the push path.
type Poller struct {
	ledger   *ledger.Service
	source   domain.StepSource
	detector *anomaly.Detector
	interval time.Duration

	mu    sync.Mutex
	users map[string]struct{}

	// injectable for tests
	now func() time.Time
}

// NewPoller builds a poller over the given source. detector may be nil.
func NewPoller(ledgerSvc *ledger.Service, source domain.StepSource, detector *anomaly.Detector, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Poller{
		ledger:   ledgerSvc,
		source:   source,
		detector: detector,
		interval: interval,
		users:    make(map[string]struct{}),
		now:      time.Now,
	}
}

// Register adds a user to the polling set.
func (p *Poller) Register(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[userID] = struct{}{}
}

// Unregister removes a user from the polling set.
func (p *Poller) Unregister(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.users, userID)
}

// UserCount returns how many users are polled.
func (p *Poller) UserCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users)
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one cycle across every registered user. A failing source skips
// the user; there is no new information, and the next tick retries.
func (p *Poller) Poll(ctx context.Context) {
	p.mu.Lock()
	ids := make([]string, 0, len(p.users))
	for id := range p.users {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	now := p.now()
	windowStart := now.Add(-p.interval)

	for _, userID := range ids {
		steps, err := p.source.CumulativeSteps(ctx, userID, windowStart, now)
		if err != nil {
			if errors.Is(err, domain.ErrSourceUnavailable) {
				observability.PollerSourceErrors.Inc()
				continue
			}
			log.Printf("poller: user %s: %v", userID, err)
			continue
		}

		if p.detector != nil {
			if state, err := p.ledger.State(ctx, userID); err == nil {
				if delta := steps - state.LastObservedSteps; delta > 0 {
					p.detector.Analyze(anomaly.Observation{UserID: userID, Delta: delta, Timestamp: now})
				}
			}
		}

		if _, err := p.ledger.RecordStepObservation(ctx, userID, steps); err != nil {
			log.Printf("poller: record for user %s: %v", userID, err)
		}
	}

	observability.PollerCycles.Inc()
}

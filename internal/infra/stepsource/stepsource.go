// Package stepsource provides domain.StepSource implementations: an HTTP
// client for server-side health-platform integrations and a simulated
// source for development.
package stepsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/letsbehealthy/stepcoin/internal/domain"
)

// ─── HTTP Source ────────────────────────────────────────────────────────────

// HTTPSource queries an external step provider over HTTP. Any transport or
// decode failure maps to ErrSourceUnavailable: the caller skips the cycle
// and retries on the next tick.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource builds a source against the provider's base URL.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// CumulativeSteps fetches the step total for a user over a window.
func (s *HTTPSource) CumulativeSteps(ctx context.Context, userID string, windowStart, windowEnd time.Time) (int64, error) {
	q := url.Values{}
	q.Set("start", windowStart.UTC().Format(time.RFC3339))
	q.Set("end", windowEnd.UTC().Format(time.RFC3339))
	endpoint := fmt.Sprintf("%s/users/%s/steps?%s", s.baseURL, url.PathEscape(userID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", domain.ErrSourceUnavailable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: provider returned %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}

	var body struct {
		CumulativeSteps int64 `json:"cumulative_steps"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", domain.ErrSourceUnavailable, err)
	}
	if body.CumulativeSteps < 0 {
		return 0, fmt.Errorf("%w: negative step count %d", domain.ErrSourceUnavailable, body.CumulativeSteps)
	}
	return body.CumulativeSteps, nil
}

// ─── Simulated Source ───────────────────────────────────────────────────────

// SimulatedSource fabricates a steadily-walking user for development and
// demos. Steps accumulate at a fixed rate from a start instant, so repeated
// queries produce monotonically non-decreasing counts.
type SimulatedSource struct {
	start        time.Time
	stepsPerHour int64

	// injectable for tests
	now func() time.Time
}

// NewSimulatedSource builds a source crediting stepsPerHour since start.
func NewSimulatedSource(start time.Time, stepsPerHour int64) *SimulatedSource {
	if stepsPerHour <= 0 {
		stepsPerHour = 500
	}
	return &SimulatedSource{
		start:        start,
		stepsPerHour: stepsPerHour,
		now:          time.Now,
	}
}

// CumulativeSteps returns the simulated total. The window is ignored: the
// simulation is a single monotone counter, which is what the ledger's
// delta-based accrual expects.
func (s *SimulatedSource) CumulativeSteps(_ context.Context, _ string, _, _ time.Time) (int64, error) {
	elapsed := s.now().Sub(s.start)
	if elapsed < 0 {
		return 0, nil
	}
	return int64(elapsed.Hours() * float64(s.stepsPerHour)), nil
}

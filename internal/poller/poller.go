// Package poller reads real-time measurements from a P1 meter's local
// HTTP API. One poll is one blocking GET with a bounded timeout; any
// failure is reported to the caller, who skips the tick and tries again
// on the next one. The poller carries no retry logic of its own.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gridpulse/p1-telemetry/internal/normalize"
)

// DefaultTimeout bounds a single measurement request.
const DefaultTimeout = 5 * time.Second

// Poller fetches measurements from one meter on the local network.
type Poller struct {
	host   string
	token  string
	client *http.Client
}

// New returns a poller for the meter at host authenticating with token.
func New(host, token string) *Poller {
	return &Poller{
		host:   host,
		token:  token,
		client: &http.Client{Timeout: DefaultTimeout},
	}
}

// SetClient replaces the HTTP client. Intended for tests.
func (p *Poller) SetClient(c *http.Client) { p.client = c }

// Poll performs one measurement request and returns the parsed raw
// payload. Network errors, non-200 statuses, and malformed bodies all
// come back as errors; the caller logs and moves on.
func (p *Poller) Poll(ctx context.Context) (normalize.RawMeasurement, error) {
	var raw normalize.RawMeasurement

	url := fmt.Sprintf("http://%s/api/measurement", p.host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return raw, err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return raw, fmt.Errorf("poll %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return raw, fmt.Errorf("poll %s: unexpected status %d", url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return raw, fmt.Errorf("poll %s: decode body: %w", url, err)
	}
	return raw, nil
}

package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/afroash/hydro-monitor/internal/models"
)

// maxBodyBytes caps a fetched batch; a real controller payload is a few
// hundred bytes.
const maxBodyBytes = 1 << 20

// HTTPSource fetches a JSON object of metric values from a controller
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates a source for url with a per-request timeout
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Name identifies the source in logs and metrics
func (s *HTTPSource) Name() string {
	return "http"
}

// Fetch performs one GET and decodes the body as a batch. Numbers are kept
// as json.Number so ParseValue sees the exact text the controller sent.
func (s *HTTPSource) Fetch(ctx context.Context) (models.Batch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", s.url, resp.StatusCode)
	}

	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	decoder.UseNumber()

	var batch models.Batch
	if err := decoder.Decode(&batch); err != nil {
		return nil, fmt.Errorf("failed to decode readings: %w", err)
	}
	if batch == nil {
		return nil, fmt.Errorf("fetch %s: response is not a JSON object", s.url)
	}
	return batch, nil
}

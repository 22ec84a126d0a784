// Package signals implements the independent evidence sources that feed the
// risk aggregator. Each provider converts its upstream response into a typed
// payload at the boundary and reports failures as Unavailable results.
package signals

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"catchphish/internal/models"
)

// Target identifies what is being analyzed. Domain is always set; URL is the
// original input when the analysis started from a URL.
type Target struct {
	URL    string
	Domain string
}

// PageURL returns the URL to fetch for content analysis.
func (t Target) PageURL() string {
	if t.URL != "" {
		return t.URL
	}
	return "https://" + t.Domain + "/"
}

// Provider produces exactly one SignalResult per call and never returns an
// error: failures are encoded as Unavailable.
type Provider interface {
	Name() models.SignalName
	Collect(ctx context.Context, target Target) models.SignalResult
}

const maxResponseSize = 5 * 1024 * 1024

var errNotFound = errors.New("not found")

// defaultClient is shared by HTTP providers that were not given a client.
var defaultClient = &http.Client{Timeout: 15 * time.Second}

// doJSON sends req and decodes a JSON response body into out.
func doJSON(client *http.Client, req *http.Request, out any) error {
	if client == nil {
		client = defaultClient
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "catchphish/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// postJSON marshals body and posts it to url.
func postJSON(ctx context.Context, client *http.Client, url, bearer string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return doJSON(client, req, out)
}

// reason turns an error into a short unavailability reason.
func reason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return err.Error()
	}
}

package citybike

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// DefaultEndpoint is the Föli city bike feed
const DefaultEndpoint = "https://data.foli.fi/citybike"

// Client fetches the rack directory from the city bike feed
type Client struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewClient creates a client for the given endpoint.
// A nil httpClient gets a client with the provided timeout.
func NewClient(endpoint string, httpClient *http.Client, timeout time.Duration, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: endpoint,
		client:   httpClient,
		logger:   logger,
	}
}

// Endpoint returns the configured feed URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Fetch performs one GET against the feed and decodes the response.
// Every call is a fresh round trip; nothing is retried or cached.
func (c *Client) Fetch(ctx context.Context) (*Directory, error) {
	endpoint, err := parseEndpoint(c.endpoint)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &TransportError{Cause: fmt.Errorf("API returned %d: %s", resp.StatusCode, string(body))}
	}

	body := &readTracker{r: resp.Body}
	dir, err := Decode(body)
	if body.err != nil {
		// the connection failed mid-body; the decoder only saw a truncated stream
		return nil, &TransportError{Cause: body.err}
	}
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched racks",
		zap.Int("racks", dir.Len()),
		zap.Int64("lastupdate", dir.LastUpdate),
		zap.Duration("elapsed", time.Since(started)),
	)
	return dir, nil
}

func parseEndpoint(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	return u.String(), nil
}

// readTracker records the first non-EOF read error from the response body
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && t.err == nil {
		t.err = err
	}
	return n, err
}

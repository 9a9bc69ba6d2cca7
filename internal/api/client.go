package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrAPIUnavailable is returned when no API bind is configured.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// Client talks to a running daemon over HTTP.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for bind ("host:port" or a URL). An empty bind
// returns ErrAPIUnavailable.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrAPIUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Status fetches /api/status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

// Pending fetches /api/pending.
func (c *Client) Pending(ctx context.Context) (PendingResponse, error) {
	var out PendingResponse
	err := c.do(ctx, http.MethodGet, "/api/pending", nil, nil, &out)
	return out, err
}

// Processed fetches up to limit recent processed entries.
func (c *Client) Processed(ctx context.Context, limit int) (ProcessedResponse, error) {
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var out ProcessedResponse
	err := c.do(ctx, http.MethodGet, "/api/processed", values, nil, &out)
	return out, err
}

// Import queues path on the daemon's dispatch worker.
func (c *Client) Import(ctx context.Context, path string) (ImportResponse, error) {
	var out ImportResponse
	err := c.do(ctx, http.MethodPost, "/api/import", nil, ImportRequest{Path: path}, &out)
	return out, err
}

// Rescan asks the daemon for a Jellyfin refresh.
func (c *Client) Rescan(ctx context.Context) (RescanResponse, error) {
	var out RescanResponse
	err := c.do(ctx, http.MethodPost, "/api/rescan", nil, nil, &out)
	return out, err
}

// Forget removes path from the daemon's processed record.
func (c *Client) Forget(ctx context.Context, path string) (ForgetResponse, error) {
	var out ForgetResponse
	err := c.do(ctx, http.MethodDelete, "/api/processed", url.Values{"path": {path}}, nil, &out)
	return out, err
}

// Prune drops processed entries older than days.
func (c *Client) Prune(ctx context.Context, days int) (PruneResponse, error) {
	var out PruneResponse
	err := c.do(ctx, http.MethodPost, "/api/processed/prune", url.Values{"days": {strconv.Itoa(days)}}, nil, &out)
	return out, err
}

// TestNotification asks the daemon to send an ntfy test message.
func (c *Client) TestNotification(ctx context.Context) (NotifyResponse, error) {
	var out NotifyResponse
	err := c.do(ctx, http.MethodPost, "/api/notify/test", nil, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr ErrorResponse
		if json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("api %s returned status %d: %s", path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("api %s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// IsAPIUnavailable reports whether err means no daemon is listening.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}

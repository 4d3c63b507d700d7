package netclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Per-task timeouts: the ceiling on one HTTP exchange for that task,
// measured from request construction to response body fully read.
const (
	UploadTimeout   = 4 * time.Second
	CommandTimeout  = 2 * time.Second
	ConfigTimeout   = 2 * time.Second
	FirmwareTimeout = 5 * time.Second
)

// Client serializes HTTP exchanges over the device's one network interface.
type Client struct {
	BaseURL string
	http    *http.Client
	sem     chan struct{}
}

// New builds a Client against baseURL (e.g. "https://cloud.ecowatt.example").
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		http:    &http.Client{},
		sem:     make(chan struct{}, 1),
	}
}

// acquire reserves the shared interface, giving up if ctx expires first.
func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("netclient: acquire interface: %w", ctx.Err())
	}
}

func (c *Client) release() {
	<-c.sem
}

// Do performs method against c.BaseURL+path, serialized against every other
// in-flight call on this Client. ctx's deadline governs both how long the
// call waits to acquire the shared interface and how long the exchange
// itself may run — callers derive ctx from one of the timeout constants
// above. The caller owns closing the returned response body.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	return c.do(ctx, ctx, method, path, body, headers)
}

// DoWithAcquireTimeout behaves like Do, but bounds only the wait to
// acquire the shared interface to acquireTimeout instead of ctx's full
// deadline. Use this where a task's overall deadline is longer than the
// interface's own acquisition sub-deadline — e.g. upload, whose task
// deadline is 5s but which must give up waiting for the interface after
// UploadTimeout (4s) so the exchange itself still gets a usable window.
// The exchange itself still runs under ctx's full deadline.
func (c *Client) DoWithAcquireTimeout(ctx context.Context, acquireTimeout time.Duration, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()
	return c.do(acquireCtx, ctx, method, path, body, headers)
}

func (c *Client) do(acquireCtx, execCtx context.Context, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	if err := c.acquire(acquireCtx); err != nil {
		return nil, err
	}
	defer c.release()

	req, err := http.NewRequestWithContext(execCtx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("netclient: build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("netclient: %s %s: %w", method, path, err)
	}
	return resp, nil
}

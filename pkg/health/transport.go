package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// defaultCheckTimeout bounds a single HTTPChecker/TCPChecker attempt. Post-
// boot diagnostics (pkg/health/runner.go) run every NamedChecker in
// sequence against one 15-second budget (cmd/ecowatt's
// runPostBootDiagnostics), so a per-checker default well under that keeps
// a single slow check from starving the checkers behind it.
const defaultCheckTimeout = 5 * time.Second

// HTTPChecker confirms an HTTP endpoint — in practice, the cloud base URL
// — is reachable and returns an acceptable status. It's the diagnostic the
// runner uses to decide whether a freshly applied firmware image can even
// talk to the cloud before committing to the new slot.
type HTTPChecker struct {
	URL               string
	Method            string
	Headers           map[string]string
	ExpectedStatusMin int
	ExpectedStatusMax int
	Client            *http.Client
}

// NewHTTPChecker builds a checker against url with EcoWatt's default
// reachability criteria: a GET that completes within defaultCheckTimeout
// and returns any 2xx/3xx status.
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:               url,
		Method:            http.MethodGet,
		Headers:           make(map[string]string),
		ExpectedStatusMin: 200,
		ExpectedStatusMax: 399,
		Client:            &http.Client{Timeout: defaultCheckTimeout},
	}
}

// Check performs the HTTP reachability check.
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, h.Method, h.URL, nil)
	if err != nil {
		return Result{Healthy: false, Message: fmt.Sprintf("failed to build request: %v", err), CheckedAt: start, Duration: time.Since(start)}
	}
	for key, value := range h.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return Result{Healthy: false, Message: fmt.Sprintf("request failed: %v", err), CheckedAt: start, Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode >= h.ExpectedStatusMin && resp.StatusCode <= h.ExpectedStatusMax
	message := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if !healthy {
		message = fmt.Sprintf("%s (expected %d-%d)", message, h.ExpectedStatusMin, h.ExpectedStatusMax)
	}
	return Result{Healthy: healthy, Message: message, CheckedAt: start, Duration: time.Since(start)}
}

// Type returns the health check type.
func (h *HTTPChecker) Type() CheckType { return CheckTypeHTTP }

// WithMethod sets the HTTP method.
func (h *HTTPChecker) WithMethod(method string) *HTTPChecker {
	h.Method = method
	return h
}

// WithHeader adds a custom HTTP header.
func (h *HTTPChecker) WithHeader(key, value string) *HTTPChecker {
	h.Headers[key] = value
	return h
}

// WithStatusRange sets the acceptable status code range.
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.ExpectedStatusMin = min
	h.ExpectedStatusMax = max
	return h
}

// WithTimeout sets the HTTP client timeout.
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.Client.Timeout = timeout
	return h
}

// TCPChecker confirms a TCP endpoint accepts connections. It exists for
// deployments where the register carrier runs over a serial-to-TCP
// gateway rather than a local serial device, so a gateway outage shows up
// as a diagnostic failure instead of a mysterious polling-task timeout.
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

// NewTCPChecker builds a checker against address with EcoWatt's default
// connection timeout.
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address, Timeout: defaultCheckTimeout}
}

// Check dials Address and reports whether the connection succeeds.
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return Result{Healthy: false, Message: fmt.Sprintf("connection failed: %v", err), CheckedAt: start, Duration: time.Since(start)}
	}
	defer conn.Close()

	return Result{Healthy: true, Message: fmt.Sprintf("tcp connection to %s succeeded", t.Address), CheckedAt: start, Duration: time.Since(start)}
}

// Type returns the health check type.
func (t *TCPChecker) Type() CheckType { return CheckTypeTCP }

// WithTimeout sets the connection timeout.
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}

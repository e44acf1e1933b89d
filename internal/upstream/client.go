// Package upstream builds the outbound HTTP clients used to reach the avatar
// provider and the dialogue webhook.
package upstream

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody caps how much of a failed upstream response is kept for diagnostics.
const maxErrorBody = 4 << 10

// NewClient returns an HTTP client whose transport honours HTTPS_PROXY,
// HTTP_PROXY and NO_PROXY for egress control.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// StatusError describes a non-2xx upstream response.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s http status %d", e.Service, e.Status)
	}
	return fmt.Sprintf("%s http status %d: %s", e.Service, e.Status, e.Body)
}

// IsSuccess reports whether the status code is 2xx.
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}

// CheckResponse returns a *StatusError for non-2xx responses. The body is
// read up to a small limit and left for the caller to close.
func CheckResponse(service string, res *http.Response) error {
	if IsSuccess(res.StatusCode) {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	return &StatusError{
		Service: service,
		Status:  res.StatusCode,
		Body:    strings.TrimSpace(string(body)),
	}
}

// Package httpds downloads a dataset over HTTP(S).
package httpds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"jobmarket/internal/config"
	apperrors "jobmarket/internal/errors"
)

const defaultTimeout = 5 * time.Minute

// NewClient returns a client that negotiates gzip transfer encoding.
// timeout <= 0 uses five minutes.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 4,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: gzhttp.Transport(transport),
	}
}

// Open issues a GET for src.URL and returns the response body. A nil client
// uses NewClient with src.TimeoutSeconds.
//
// Errors:
//   - SourceNotFound on 404 and 410.
//   - any other non-2xx status.
func Open(ctx context.Context, client *http.Client, src config.HTTPSource) (io.ReadCloser, error) {
	if client == nil {
		client = NewClient(time.Duration(src.TimeoutSeconds) * time.Second)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}
	for k, v := range src.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, nil
	}

	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()

	err = fmt.Errorf("GET %s: %s", src.URL, resp.Status)
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, apperrors.SourceNotFound(src.URL, err)
	}
	return nil, err
}

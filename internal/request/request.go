package request

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"benchmark-verifier/internal/benchmark"
	"benchmark-verifier/internal/verification"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout = 10 * time.Second

	TCPDialTimeout      = 5 * time.Second
	TLSHandshakeTimeout = 5 * time.Second
	IdleConnTimeout     = 90 * time.Second

	// MaxBodySize bounds how much of a response body is read.
	MaxBodySize = 16 << 20
)

// Client fetches headers and bodies for verification probes.
type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: TCPDialTimeout,
		}).DialContext,
		TLSHandshakeTimeout: TLSHandshakeTimeout,
		IdleConnTimeout:     IdleConnTimeout,
		MaxIdleConnsPerHost: 64,
		// Transparent gzip strips Content-Length from the response the headers are checked on.
		DisableCompression: true,
	}
	return &Client{http: &http.Client{Transport: transport, Timeout: timeout}}
}

func (c *Client) do(ctx context.Context, url string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", benchmark.Accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", verification.ErrConnectivity, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading body: %v", verification.ErrConnectivity, err)
	}
	return resp, body, nil
}

// GetResponseHeaders requests url and returns its header-level view.
// On failure a single error finding is recorded in messages.
func (c *Client) GetResponseHeaders(ctx context.Context, url string, messages *verification.Messages) (*verification.ResponseHeaders, error) {
	start := time.Now()
	resp, _, err := c.do(ctx, url)
	if err != nil {
		messages.Error("Request failed", fmt.Sprintf("Unable to fetch headers from %s: %v", url, err))
		return nil, err
	}
	messages.RecordLatency(time.Since(start))

	return &verification.ResponseHeaders{
		StatusCode:       resp.StatusCode,
		Header:           resp.Header,
		ContentLength:    resp.ContentLength,
		TransferEncoding: resp.TransferEncoding,
	}, nil
}

// GetResponseBody requests url and returns its body.
// On failure a single error finding is recorded in messages and ok is false.
func (c *Client) GetResponseBody(ctx context.Context, url string, messages *verification.Messages) (body []byte, ok bool) {
	start := time.Now()
	resp, body, err := c.do(ctx, url)
	if err != nil {
		messages.Error("Request failed", fmt.Sprintf("Unable to fetch body from %s: %v", url, err))
		return nil, false
	}
	messages.RecordLatency(time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		messages.Warning("Non-2xx status code", fmt.Sprintf("%s returned status %d", url, resp.StatusCode))
	}
	return body, true
}

// Hammer issues n GET requests to url with at most concurrency in flight and returns how many failed.
// It records nothing; it only drives load for counter reconciliation.
func (c *Client) Hammer(ctx context.Context, url string, n, concurrency int) int {
	if concurrency < 1 {
		concurrency = 1
	}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			resp, _, err := c.do(gctx, url)
			if err != nil || resp.StatusCode >= 300 {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(failed.Load())
}

// Package fetch performs single bounded HTTP retrievals and, on trust
// failures, one-shot capture of a peer's certificate chain so the
// caller can retry with that chain as an alternate trust root.
package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultMaxBodyBytes caps a response body read at 100 MiB. Bodies are
// always read fully before returning; the cap bounds memory instead of
// streaming.
const DefaultMaxBodyBytes = 100 << 20

// BrowserHeaders mimics a desktop browser. Several publisher hosts
// refuse requests without them.
var BrowserHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
	"Accept-Language": "en-US,en;q=0.9",
	"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36",
}

// Config holds fetch client parameters.
type Config struct {
	// Timeout bounds a single retrieval end to end.
	Timeout time.Duration
	// MaxBodyBytes caps the response body read. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// Headers is sent on every request.
	Headers map[string]string
}

// Response is a fully-read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FinalHost  string
}

// Client retrieves URLs with a standard trust configuration, and on
// request with a caller-supplied root pool in place of the system roots.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewClient creates a Client. A nil logger falls back to slog.Default.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger.With("component", "fetch"),
	}
}

// Get retrieves url with standard certificate verification.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, url, c.client)
}

// GetWithRoots retrieves url verifying the peer against roots instead
// of the system pool. Callers use this for exactly one retry after a
// trust-kind failure.
func (c *Client) GetWithRoots(ctx context.Context, url string, roots *x509.CertPool) (*Response, error) {
	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: roots},
		},
	}
	defer client.CloseIdleConnections()
	return c.do(ctx, url, client)
}

func (c *Client) do(ctx context.Context, url string, client *http.Client) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: KindOther, URL: url, Err: err}
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Kind: classify(err), URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, &Error{Kind: classify(err), URL: url, Err: err}
	}
	if int64(len(body)) > c.cfg.MaxBodyBytes {
		return nil, &Error{Kind: KindOther, URL: url, Err: ErrBodyTooLarge}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalHost:  resp.Request.URL.Hostname(),
	}, nil
}

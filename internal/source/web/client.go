package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gnutt/cloudflare-aaaa-sync/internal/metrics"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/provider"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/source"
)

const DefaultURL = "https://v6.ipinfo.io/ip"

// Largest body we accept from an address service.
const maxBody = 1 << 10

type Httper interface {
	Do(req *http.Request) (*http.Response, error)
}

type client struct {
	url     string
	http    Httper
	metrics *metrics.Metrics
}

// New returns a resolver that takes the body of a GET to url as the address.
func New(url string, metrics *metrics.Metrics) source.Resolver {
	return NewWithClient(url, &http.Client{}, metrics)
}

func NewWithClient(url string, httper Httper, metrics *metrics.Metrics) source.Resolver {
	if url == "" {
		url = DefaultURL
	}
	return &client{
		url:     url,
		http:    httper,
		metrics: metrics,
	}
}

func (c *client) Resolve(ctx context.Context) (string, error) {
	const op = "resolve address"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.IncResolverRequest(false, 0)
		return "", &provider.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.IncResolverRequest(false, resp.StatusCode)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		return "", &provider.ProviderError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("address service request, status=%d, body=%q", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		c.metrics.IncResolverRequest(false, resp.StatusCode)
		return "", &provider.NetworkError{Op: op, Err: err}
	}
	if len(body) > maxBody {
		c.metrics.IncResolverRequest(false, resp.StatusCode)
		return "", &provider.ParseError{Op: op, Err: fmt.Errorf("response body exceeds %d bytes", maxBody)}
	}

	addr := strings.TrimSpace(string(body))
	if addr == "" {
		c.metrics.IncResolverRequest(false, resp.StatusCode)
		return "", &provider.ParseError{Op: op, Err: errors.New("empty response body")}
	}

	c.metrics.IncResolverRequest(true, resp.StatusCode)
	slog.Debug("Resolved public address", "url", c.url, "address", addr)
	return addr, nil
}

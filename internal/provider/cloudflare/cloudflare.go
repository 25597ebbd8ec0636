package cloudflare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/config"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/metrics"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/provider"
)

type CloudflareProvider struct {
	client  *cloudflare.API
	metrics *metrics.Metrics
	zoneID  string
	ttl     int
	proxied *bool
}

type settings struct {
	httpClient *http.Client
}

// Option tunes the underlying API client.
type Option func(*settings)

// WithHTTPClient replaces the client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) {
		s.httpClient = hc
	}
}

func New(cfg config.Cloudflare, metrics *metrics.Metrics, options ...Option) (*CloudflareProvider, error) {
	token := cfg.Token
	if token == "" {
		return nil, fmt.Errorf("cloudflare API token required")
	}
	if cfg.ZoneID == "" {
		return nil, fmt.Errorf("cloudflare zone id required")
	}

	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 4
	}
	opts := []cloudflare.Option{
		// A failed call is reported, the next scheduled run tries again.
		cloudflare.UsingRetryPolicy(0, 0, 0),
		cloudflare.UsingRateLimit(rateLimit),
		cloudflare.UserAgent("cloudflare-aaaa-sync"),
	}
	if cfg.APIURL != "" {
		opts = append(opts, cloudflare.BaseURL(strings.TrimSuffix(cfg.APIURL, "/")))
	}
	s := settings{httpClient: http.DefaultClient}
	for _, o := range options {
		o(&s)
	}
	opts = append(opts, cloudflare.HTTPClient(recordStatus(s.httpClient)))

	client, err := cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloudflare client: %w", err)
	}

	return &CloudflareProvider{
		client:  client,
		metrics: metrics,
		zoneID:  cfg.ZoneID,
		ttl:     cfg.TTL,
		proxied: cfg.Proxied,
	}, nil
}

func (p *CloudflareProvider) ListRecords(ctx context.Context) ([]provider.Record, error) {
	slog.Debug("Listing DNS records", "zone", p.zoneID)
	start := time.Now()
	ctx, status := withStatus(ctx)

	// Zero ResultInfo makes the client walk every page.
	records, _, err := p.client.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(p.zoneID), cloudflare.ListDNSRecordsParams{})
	if err != nil {
		p.metrics.IncDNSRequest("read", false)
		return nil, classify("list records", err, *status)
	}

	result := make([]provider.Record, 0, len(records))
	for _, r := range records {
		result = append(result, fromCloudflare(r, p.zoneID))
	}

	p.metrics.IncDNSRequest("read", true)
	slog.Debug("Listed DNS records", "zone", p.zoneID, "count", len(result), "duration", time.Since(start))
	return result, nil
}

func (p *CloudflareProvider) CreateRecord(ctx context.Context, record provider.Record) (provider.Record, error) {
	slog.Debug("Creating DNS record", "zone", p.zoneID, "name", record.Name, "type", record.Type, "data", record.Data)
	start := time.Now()

	params := cloudflare.CreateDNSRecordParams{
		Type:    record.Type,
		Name:    record.Name,
		Content: record.Data,
		TTL:     p.recordTTL(record),
		Proxied: p.proxied,
	}

	ctx, status := withStatus(ctx)
	created, err := p.client.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(p.zoneID), params)
	if err != nil {
		p.metrics.IncDNSRequest("create", false)
		return provider.Record{}, classify("create record", err, *status)
	}

	p.metrics.IncDNSRequest("create", true)
	slog.Debug("Created DNS record", "zone", p.zoneID, "id", created.ID, "name", record.Name, "duration", time.Since(start))
	return fromCloudflare(created, p.zoneID), nil
}

func (p *CloudflareProvider) UpdateRecord(ctx context.Context, record provider.Record) (provider.Record, error) {
	slog.Debug("Updating DNS record", "zone", p.zoneID, "id", record.ID, "name", record.Name, "type", record.Type, "data", record.Data)
	start := time.Now()

	if record.ID == "" {
		p.metrics.IncDNSRequest("update", false)
		return provider.Record{}, fmt.Errorf("update record: record id required")
	}

	params := cloudflare.UpdateDNSRecordParams{
		ID:      record.ID,
		Type:    record.Type,
		Name:    record.Name,
		Content: record.Data,
		TTL:     p.recordTTL(record),
		Proxied: p.proxied,
	}

	ctx, status := withStatus(ctx)
	updated, err := p.client.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(p.zoneID), params)
	if err != nil {
		p.metrics.IncDNSRequest("update", false)
		return provider.Record{}, classify("update record", err, *status)
	}

	p.metrics.IncDNSRequest("update", true)
	slog.Debug("Updated DNS record", "zone", p.zoneID, "id", record.ID, "duration", time.Since(start))
	return fromCloudflare(updated, p.zoneID), nil
}

func (p *CloudflareProvider) DeleteRecord(ctx context.Context, record provider.Record) error {
	slog.Debug("Deleting DNS record", "zone", p.zoneID, "id", record.ID, "name", record.Name, "type", record.Type)
	start := time.Now()

	if record.ID == "" {
		p.metrics.IncDNSRequest("delete", false)
		return fmt.Errorf("delete record: record id required")
	}

	ctx, status := withStatus(ctx)
	err := p.client.DeleteDNSRecord(ctx, cloudflare.ZoneIdentifier(p.zoneID), record.ID)
	if err != nil {
		p.metrics.IncDNSRequest("delete", false)
		return classify("delete record", err, *status)
	}

	p.metrics.IncDNSRequest("delete", true)
	slog.Debug("Deleted DNS record", "zone", p.zoneID, "id", record.ID, "duration", time.Since(start))
	return nil
}

// recordTTL prefers the record's own ttl over the configured one; zero
// leaves the ttl out of the request.
func (p *CloudflareProvider) recordTTL(record provider.Record) int {
	if record.TTL > 0 {
		return int(record.TTL.Seconds())
	}
	return p.ttl
}

func fromCloudflare(r cloudflare.DNSRecord, zoneID string) provider.Record {
	return provider.Record{
		ID:   r.ID,
		Name: r.Name,
		Type: r.Type,
		Data: r.Content,
		TTL:  time.Duration(r.TTL) * time.Second,
		Zone: zoneID,
	}
}

// apiError is satisfied by the client's typed HTTP errors.
type apiError interface {
	error
	ErrorCodes() []int
	ErrorMessages() []string
}

// classify maps a client error onto the provider error types. status is the
// last HTTP status seen for the call, zero when no response arrived.
func classify(op string, err error, status int) error {
	if err == nil {
		return nil
	}

	// With retries off, 429 and 5xx come back as untyped errors, so the
	// status decides rather than the error type.
	if status >= http.StatusBadRequest {
		providerErr := &provider.ProviderError{Op: op, StatusCode: status, Err: err}
		var apiErr apiError
		if errors.As(err, &apiErr) {
			providerErr.Codes = apiErr.ErrorCodes()
			providerErr.Messages = apiErr.ErrorMessages()
		}
		return providerErr
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &provider.ParseError{Op: op, Err: err}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &provider.NetworkError{Op: op, Err: err}
	}

	return &provider.ProviderError{Op: op, StatusCode: status, Err: err}
}

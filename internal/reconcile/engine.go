package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gnutt/cloudflare-aaaa-sync/internal/config"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/metrics"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/provider"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/source"
)

// ErrPartialFailure is returned when at least one planned write failed.
// The per-record errors are in Results.Failures.
var ErrPartialFailure = errors.New("one or more record operations failed")

type Engine interface {
	Reconcile(ctx context.Context) (Results, error)
}

type engine struct {
	dnsProvider provider.Provider
	resolver    source.Resolver
	hostname    string
	recordType  string
	dryRun      bool
	validate    bool
	primary     string
	metrics     *metrics.Metrics
}

func NewEngine(dp provider.Provider, r source.Resolver, cfg *config.Config, metrics *metrics.Metrics) *engine {
	primary := cfg.Reconcile.Primary
	if primary == "" {
		primary = config.PrimaryFirst
	}
	return &engine{
		dnsProvider: dp,
		resolver:    r,
		hostname:    provider.NormalizeName(cfg.Hostname),
		recordType:  provider.TypeAAAA,
		dryRun:      cfg.Reconcile.DryRun,
		validate:    cfg.Resolver.ShouldValidate(),
		primary:     primary,
		metrics:     metrics,
	}
}

// Reconcile runs one pass: resolve the public address, list the zone and
// converge on a single matching record holding that address.
func (e *engine) Reconcile(ctx context.Context) (Results, error) {
	results := Results{DryRun: e.dryRun}

	address, err := e.resolveAddress(ctx)
	if err != nil {
		return results, fmt.Errorf("resolve address: %w", err)
	}
	results.Address = address
	slog.Info("Resolved public address", "address", address)

	records, err := e.dnsProvider.ListRecords(ctx)
	if err != nil {
		return results, fmt.Errorf("list records: %w", err)
	}
	slog.Debug("Got records from dns provider", "count", len(records))

	matching := e.filter(records)
	results.Matched = len(matching)
	e.metrics.SetMatchingRecords(len(matching))

	plan := e.generatePlan(matching, address)
	if plan.IsEmpty() {
		slog.Info("Cloudflare record in sync with public address", "name", e.hostname, "address", address)
		return results, nil
	}

	return e.executePlan(ctx, plan, results)
}

func (e *engine) resolveAddress(ctx context.Context) (string, error) {
	raw, err := e.resolver.Resolve(ctx)
	if err != nil {
		return "", err
	}
	if !e.validate {
		return raw, nil
	}
	addr, err := provider.ParseAddress(e.hostname, raw)
	if err != nil {
		return "", &provider.ParseError{Op: "validate address", Err: err}
	}
	return addr.String(), nil
}

// filter keeps the records matching hostname and type, in provider order.
func (e *engine) filter(records []provider.Record) []provider.Record {
	var matching []provider.Record
	for _, r := range records {
		if r.Matches(e.hostname, e.recordType) {
			matching = append(matching, r)
		}
	}
	return matching
}

// selectPrimary splits matching records into the authoritative record and
// the surplus, which keeps provider order.
func (e *engine) selectPrimary(matching []provider.Record) (provider.Record, []provider.Record) {
	idx := 0
	if e.primary == config.PrimaryLowestID {
		for i, r := range matching {
			if r.ID < matching[idx].ID {
				idx = i
			}
		}
	}
	surplus := make([]provider.Record, 0, len(matching)-1)
	surplus = append(surplus, matching[:idx]...)
	surplus = append(surplus, matching[idx+1:]...)
	return matching[idx], surplus
}

func (e *engine) generatePlan(matching []provider.Record, address string) Plan {
	plan := Plan{}

	if len(matching) == 0 {
		slog.Info("Cloudflare had no record for hostname, adding", "name", e.hostname, "type", e.recordType, "address", address)
		plan.Create = append(plan.Create, provider.Record{
			Name: e.hostname,
			Type: e.recordType,
			Data: address,
		})
		e.metrics.IncDNSOperation("create", e.recordType)
		return plan
	}

	primary, surplus := e.selectPrimary(matching)
	if !provider.SameContent(primary.Data, address) {
		slog.Info("Cloudflare address differs from public address, updating",
			"id", primary.ID, "name", e.hostname, "from", primary.Data, "to", address)
		updated := primary
		updated.Name = e.hostname
		updated.Type = e.recordType
		updated.Data = address
		plan.Update = append(plan.Update, updated)
		e.metrics.IncDNSOperation("update", e.recordType)
	} else {
		e.metrics.IncDNSOperation("skip", e.recordType)
	}

	if len(surplus) > 0 {
		slog.Info("Surplus Cloudflare records exist, removing extra", "name", e.hostname, "keep", primary.ID, "count", len(surplus))
		for _, r := range surplus {
			plan.Delete = append(plan.Delete, r)
			e.metrics.IncDNSOperation("delete", e.recordType)
		}
	}
	return plan
}

func (e *engine) executePlan(ctx context.Context, plan Plan, results Results) (Results, error) {
	if e.dryRun {
		slog.Info("Dry run mode - would create records", "count", len(plan.Create))
		slog.Info("Dry run mode - would update records", "count", len(plan.Update))
		slog.Info("Dry run mode - would delete records", "count", len(plan.Delete))

		results.Created = append([]provider.Record(nil), plan.Create...)
		results.Updated = append([]provider.Record(nil), plan.Update...)
		results.Deleted = append([]provider.Record(nil), plan.Delete...)
		return results, nil
	}

	// Each step runs even when an earlier one failed, so a failed update
	// still leaves at most one matching record behind.
	for _, record := range plan.Create {
		slog.Debug("Start execute create from plan", "name", record.Name, "type", record.Type, "data", record.Data)
		created, err := e.dnsProvider.CreateRecord(ctx, record)
		if err != nil {
			slog.Error("Failed to create record", "name", record.Name, "error", err)
			results.Failures = append(results.Failures, failure(record, "create", err))
			continue
		}
		if created.Data == "" {
			created = record
		}
		slog.Info("Created record", "name", record.Name, "type", record.Type, "address", record.Data)
		results.Created = append(results.Created, created)
	}

	for _, record := range plan.Update {
		slog.Debug("Start execute update from plan", "id", record.ID, "name", record.Name, "data", record.Data)
		updated, err := e.dnsProvider.UpdateRecord(ctx, record)
		if err != nil {
			slog.Error("Failed to update record", "id", record.ID, "name", record.Name, "error", err)
			results.Failures = append(results.Failures, failure(record, "update", err))
			continue
		}
		if updated.ID == "" {
			updated = record
		}
		slog.Info("Updated record", "id", record.ID, "name", record.Name, "address", record.Data)
		results.Updated = append(results.Updated, updated)
	}

	for _, record := range plan.Delete {
		slog.Info("Removing record", "id", record.ID, "address", record.Data)
		if err := e.dnsProvider.DeleteRecord(ctx, record); err != nil {
			slog.Error("Failed to delete record", "id", record.ID, "name", record.Name, "error", err)
			results.Failures = append(results.Failures, failure(record, "delete", err))
			continue
		}
		results.Deleted = append(results.Deleted, record)
	}

	if len(results.Failures) > 0 {
		errs := make([]error, 0, len(results.Failures)+1)
		errs = append(errs, ErrPartialFailure)
		for _, f := range results.Failures {
			errs = append(errs, fmt.Errorf("%s %s: %w", f.Op, describe(f.Record), f.Err))
		}
		return results, errors.Join(errs...)
	}
	return results, nil
}

func failure(record provider.Record, op string, err error) OperationResult {
	return OperationResult{
		Record: record,
		Op:     op,
		Error:  err.Error(),
		Err:    err,
	}
}

func describe(r provider.Record) string {
	if r.ID != "" {
		return fmt.Sprintf("record %s", r.ID)
	}
	return fmt.Sprintf("record %s %s", r.Type, r.Name)
}

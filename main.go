package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gnutt/cloudflare-aaaa-sync/internal/config"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/logger"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/metrics"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/provider/cloudflare"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/reconcile"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/source"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/source/web"
	"github.com/gnutt/cloudflare-aaaa-sync/internal/state"
	"golang.org/x/term"
)

// Bounds the metrics export after the sync, which may already have used up
// the run timeout.
const exportTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	dryRun := flag.Bool("dry-run", false, "Log planned changes without writing to Cloudflare")
	address := flag.String("address", "", "Use this address instead of asking the address service")
	history := flag.Int("history", 0, "Print the last N recorded runs and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Configure(os.Stdout, cfg.Log.Level, cfg.Log.Env)

	if *dryRun {
		cfg.Reconcile.DryRun = true
	}

	if *history > 0 {
		if err := showHistory(os.Stdout, cfg, *history); err != nil {
			slog.Error("Failed to read run history", "error", err)
			os.Exit(1)
		}
		return
	}

	if cfg.Cloudflare.Token == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		token, err := promptToken(os.Stderr, int(os.Stdin.Fd()))
		if err != nil {
			slog.Error("Failed to read API token", "error", err)
			os.Exit(1)
		}
		cfg.Cloudflare.Token = token
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, *address); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, address string) error {
	metrics := metrics.New(true)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	cf, err := cloudflare.New(cfg.Cloudflare, metrics)
	if err != nil {
		slog.Error("Failed to initialize DNS provider", "error", err)
		return err
	}

	var resolver source.Resolver
	if address != "" {
		resolver = source.Static(address)
	} else {
		resolver = web.New(cfg.Resolver.URL, metrics)
	}

	var history state.Manager
	if cfg.StatePath != "" {
		history, err = state.New(cfg.StatePath, cfg.HistoryLimit, metrics)
		if err != nil {
			// History is informational, a sync can go ahead without it.
			slog.Warn("Failed to open run history, continuing without it", "path", cfg.StatePath, "error", err)
			history = nil
		} else {
			defer history.Close()
		}
	}

	engine := reconcile.NewEngine(cf, resolver, cfg, metrics)

	syncErr := performSync(ctx, engine, metrics, history, cfg.Hostname)
	exportMetrics(metrics, cfg.Metrics)
	return syncErr
}

func performSync(ctx context.Context, engine reconcile.Engine, metrics *metrics.Metrics, history state.Manager, hostname string) error {
	slog.Info("Starting sync operation", "name", hostname)
	start := time.Now()

	results, err := engine.Reconcile(ctx)
	duration := time.Since(start)
	metrics.SetSyncDuration(duration)
	metrics.IncSyncRun(err == nil)

	if err != nil {
		slog.Error("Sync operation failed", "error", err, "failures", len(results.Failures))
	} else {
		slog.Info("Sync completed",
			"address", results.Address,
			"created", len(results.Created),
			"updated", len(results.Updated),
			"deleted", len(results.Deleted),
			"dryRun", results.DryRun,
			"duration", duration)
	}

	if history != nil {
		pass := newPass(start, duration, hostname, results, err)
		// Recorded even if the run was cancelled.
		if saveErr := history.SavePass(context.WithoutCancel(ctx), pass); saveErr != nil {
			slog.Warn("Failed to record run history", "error", saveErr)
		}
	}
	return err
}

func newPass(start time.Time, duration time.Duration, hostname string, results reconcile.Results, err error) state.Pass {
	pass := state.Pass{
		Started:  start.UTC(),
		Duration: duration,
		Hostname: hostname,
		Address:  results.Address,
		Matched:  results.Matched,
		Created:  len(results.Created),
		Updated:  len(results.Updated),
		Deleted:  len(results.Deleted),
		Failures: len(results.Failures),
		DryRun:   results.DryRun,
	}
	if err != nil {
		pass.Error = err.Error()
	}
	return pass
}

func exportMetrics(m *metrics.Metrics, cfg config.Metrics) {
	if cfg.PushgatewayURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		if err := m.Push(ctx, cfg.PushgatewayURL, cfg.Job); err != nil {
			slog.Warn("Failed to push metrics", "error", err)
		}
	}
	if cfg.TextfilePath != "" {
		if err := m.WriteTextfile(cfg.TextfilePath); err != nil {
			slog.Warn("Failed to write metrics textfile", "error", err)
		}
	}
}

func showHistory(w io.Writer, cfg *config.Config, limit int) error {
	if cfg.StatePath == "" {
		return errors.New("no statePath configured")
	}
	history, err := state.New(cfg.StatePath, 0, metrics.New(false))
	if err != nil {
		return err
	}
	defer history.Close()

	passes, err := history.LoadHistory(context.Background(), limit)
	if err != nil {
		return err
	}
	return printHistory(w, passes)
}

func printHistory(w io.Writer, passes []state.Pass) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tHOSTNAME\tADDRESS\tMATCHED\tCREATED\tUPDATED\tDELETED\tSTATUS")
	for _, p := range passes {
		status := "ok"
		switch {
		case !p.Succeeded():
			status = "failed"
			if p.Error != "" {
				status += ": " + firstLine(p.Error)
			}
		case p.DryRun:
			status = "dry-run"
		}
		address := p.Address
		if address == "" {
			address = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			p.Started.Format(time.RFC3339), p.Hostname, address,
			p.Matched, p.Created, p.Updated, p.Deleted, status)
	}
	return tw.Flush()
}

// errors.Join separates its parts with newlines.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func promptToken(w io.Writer, fd int) (string, error) {
	fmt.Fprint(w, "Enter Cloudflare API token: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read token from terminal: %w", err)
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"HOSTNAME", "ZONE_ID", "TOKEN", "API_URL", "TTL", "PROXIED", "RATE_LIMIT",
	"RESOLVER_URL", "RESOLVER_VALIDATE", "TIMEOUT", "DRYRUN", "PRIMARY",
	"STATE_PATH", "HISTORY_LIMIT", "PUSHGATEWAY_URL", "METRICS_JOB",
	"TEXTFILE_PATH", "LOG_LEVEL", "LOG_ENV",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(envPrefix+k, "")
	}
	t.Setenv("CLOUDFLARE_API_TOKEN", "")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
hostname: Home.Example.COM.
timeout: 30s
statePath: /var/lib/cloudflare-aaaa-sync
historyLimit: 10
cloudflare:
  zoneId: zone123
  token: secret
  ttl: 300
  proxied: false
resolver:
  url: https://ip.example/v6
  validate: false
reconcile:
  dryRun: true
  primary: lowest-id
metrics:
  pushgatewayUrl: http://pushgateway:9091
log:
  level: debug
  env: dev
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Hostname != "home.example.com" {
		t.Errorf("Hostname = %q, want normalized home.example.com", cfg.Hostname)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.Cloudflare.ZoneID != "zone123" || cfg.Cloudflare.Token != "secret" {
		t.Errorf("unexpected cloudflare credentials: %+v", cfg.Cloudflare)
	}
	if cfg.Cloudflare.TTL != 300 {
		t.Errorf("TTL = %d", cfg.Cloudflare.TTL)
	}
	if cfg.Cloudflare.Proxied == nil || *cfg.Cloudflare.Proxied {
		t.Errorf("Proxied = %v, want explicit false", cfg.Cloudflare.Proxied)
	}
	if cfg.Resolver.URL != "https://ip.example/v6" {
		t.Errorf("Resolver.URL = %q", cfg.Resolver.URL)
	}
	if cfg.Resolver.ShouldValidate() {
		t.Error("expected validation disabled")
	}
	if !cfg.Reconcile.DryRun || cfg.Reconcile.Primary != PrimaryLowestID {
		t.Errorf("unexpected reconcile config: %+v", cfg.Reconcile)
	}
	if cfg.HistoryLimit != 10 {
		t.Errorf("HistoryLimit = %d", cfg.HistoryLimit)
	}
	if cfg.Metrics.Job != defaultMetricsJob {
		t.Errorf("Metrics.Job = %q, want default", cfg.Metrics.Job)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Env != "dev" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(t.TempDir(), "absent.yaml")},
		{name: "empty file", path: writeConfig(t, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Cloudflare.APIURL != defaultAPIURL {
				t.Errorf("APIURL = %q", cfg.Cloudflare.APIURL)
			}
			if cfg.Cloudflare.RateLimit != defaultRateLimit {
				t.Errorf("RateLimit = %v", cfg.Cloudflare.RateLimit)
			}
			if cfg.Resolver.URL != defaultResolverURL {
				t.Errorf("Resolver.URL = %q", cfg.Resolver.URL)
			}
			if !cfg.Resolver.ShouldValidate() {
				t.Error("expected validation on by default")
			}
			if cfg.Reconcile.Primary != PrimaryFirst {
				t.Errorf("Primary = %q", cfg.Reconcile.Primary)
			}
			if cfg.HistoryLimit != defaultHistoryLimit {
				t.Errorf("HistoryLimit = %d", cfg.HistoryLimit)
			}
			if cfg.Timeout != 0 {
				t.Errorf("Timeout = %v, want none", cfg.Timeout)
			}
			if cfg.Log.Level != defaultLogLevel || cfg.Log.Env != defaultLogEnv {
				t.Errorf("unexpected log defaults: %+v", cfg.Log)
			}
			if err := cfg.Validate(); err == nil {
				t.Error("expected Validate to fail without hostname and credentials")
			}
		})
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "hostname: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
hostname: file.example
cloudflare:
  zoneId: filezone
  token: filetoken
`)

	t.Setenv(envPrefix+"HOSTNAME", "env.example")
	t.Setenv(envPrefix+"ZONE_ID", "envzone")
	t.Setenv(envPrefix+"TOKEN", "envtoken")
	t.Setenv(envPrefix+"TTL", "120")
	t.Setenv(envPrefix+"PROXIED", "yes")
	t.Setenv(envPrefix+"RATE_LIMIT", "1.5")
	t.Setenv(envPrefix+"RESOLVER_VALIDATE", "0")
	t.Setenv(envPrefix+"TIMEOUT", "45s")
	t.Setenv(envPrefix+"DRYRUN", "true")
	t.Setenv(envPrefix+"PRIMARY", PrimaryLowestID)
	t.Setenv(envPrefix+"HISTORY_LIMIT", "7")
	t.Setenv(envPrefix+"TEXTFILE_PATH", "/tmp/sync.prom")
	t.Setenv(envPrefix+"LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Hostname != "env.example" {
		t.Errorf("Hostname = %q", cfg.Hostname)
	}
	if cfg.Cloudflare.ZoneID != "envzone" || cfg.Cloudflare.Token != "envtoken" {
		t.Errorf("unexpected credentials: %+v", cfg.Cloudflare)
	}
	if cfg.Cloudflare.TTL != 120 {
		t.Errorf("TTL = %d", cfg.Cloudflare.TTL)
	}
	if cfg.Cloudflare.Proxied == nil || !*cfg.Cloudflare.Proxied {
		t.Errorf("Proxied = %v, want true", cfg.Cloudflare.Proxied)
	}
	if cfg.Cloudflare.RateLimit != 1.5 {
		t.Errorf("RateLimit = %v", cfg.Cloudflare.RateLimit)
	}
	if cfg.Resolver.ShouldValidate() {
		t.Error("expected validation disabled by env")
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if !cfg.Reconcile.DryRun || cfg.Reconcile.Primary != PrimaryLowestID {
		t.Errorf("unexpected reconcile config: %+v", cfg.Reconcile)
	}
	if cfg.HistoryLimit != 7 {
		t.Errorf("HistoryLimit = %d", cfg.HistoryLimit)
	}
	if cfg.Metrics.TextfilePath != "/tmp/sync.prom" {
		t.Errorf("TextfilePath = %q", cfg.Metrics.TextfilePath)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadTokenFallback(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "absent.yaml")

	t.Setenv("CLOUDFLARE_API_TOKEN", "generic")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cloudflare.Token != "generic" {
		t.Errorf("Token = %q, want fallback", cfg.Cloudflare.Token)
	}

	t.Setenv(envPrefix+"TOKEN", "specific")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cloudflare.Token != "specific" {
		t.Errorf("Token = %q, want prefixed variable to win", cfg.Cloudflare.Token)
	}
}

func TestLoadInvalidEnvIgnored(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "cloudflare:\n  ttl: 60\n")

	t.Setenv(envPrefix+"TTL", "sixty")
	t.Setenv(envPrefix+"TIMEOUT", "soon")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cloudflare.TTL != 60 {
		t.Errorf("TTL = %d, want file value kept", cfg.Cloudflare.TTL)
	}
	if cfg.Timeout != 0 {
		t.Errorf("Timeout = %v, want unset", cfg.Timeout)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Hostname:   "host.example",
			Cloudflare: Cloudflare{ZoneID: "zone", Token: "token"},
			Reconcile:  Reconcile{Primary: PrimaryFirst},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "lowest id policy", mutate: func(c *Config) { c.Reconcile.Primary = PrimaryLowestID }},
		{name: "missing hostname", mutate: func(c *Config) { c.Hostname = "" }, wantErr: true},
		{name: "missing zone", mutate: func(c *Config) { c.Cloudflare.ZoneID = "" }, wantErr: true},
		{name: "missing token", mutate: func(c *Config) { c.Cloudflare.Token = "" }, wantErr: true},
		{name: "unknown policy", mutate: func(c *Config) { c.Reconcile.Primary = "newest" }, wantErr: true},
		{name: "negative ttl", mutate: func(c *Config) { c.Cloudflare.TTL = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

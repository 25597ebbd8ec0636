package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envPrefix = "CF_AAAA_SYNC_"

	defaultAPIURL       = "https://api.cloudflare.com/client/v4"
	defaultResolverURL  = "https://v6.ipinfo.io/ip"
	defaultRateLimit    = 4.0
	defaultPrimary      = PrimaryFirst
	defaultHistoryLimit = 100
	defaultMetricsJob   = "cloudflare_aaaa_sync"
	defaultLogLevel     = "info"
	defaultLogEnv       = "prod"
)

const (
	// PrimaryFirst keeps the first matching record in provider response order.
	PrimaryFirst = "first"
	// PrimaryLowestID keeps the matching record with the lowest identifier.
	PrimaryLowestID = "lowest-id"
)

type Config struct {
	Hostname     string        `yaml:"hostname"`
	Timeout      time.Duration `yaml:"timeout"`
	StatePath    string        `yaml:"statePath"`
	HistoryLimit int           `yaml:"historyLimit"`
	Log          Log           `yaml:"log"`
	Cloudflare   Cloudflare    `yaml:"cloudflare"`
	Resolver     Resolver      `yaml:"resolver"`
	Reconcile    Reconcile     `yaml:"reconcile"`
	Metrics      Metrics       `yaml:"metrics"`
}

type Cloudflare struct {
	ZoneID    string  `yaml:"zoneId"`
	Token     string  `yaml:"token"`
	APIURL    string  `yaml:"apiUrl"`
	TTL       int     `yaml:"ttl"`
	Proxied   *bool   `yaml:"proxied"`
	RateLimit float64 `yaml:"rateLimit"`
}

type Resolver struct {
	URL      string `yaml:"url"`
	Validate *bool  `yaml:"validate"`
}

// ShouldValidate defaults to true when validate is unset.
func (r Resolver) ShouldValidate() bool {
	return r.Validate == nil || *r.Validate
}

type Reconcile struct {
	DryRun  bool   `yaml:"dryRun"`
	Primary string `yaml:"primary"`
}

type Metrics struct {
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	Job            string `yaml:"job"`
	TextfilePath   string `yaml:"textfilePath"`
}

type Log struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

func Load(path string) (*Config, error) {
	configFile := true
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Default().Warn("fail find config file, proceeding", "path", path)
		configFile = false
	}

	var cfg Config
	if configFile {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			f.Close()
			return nil, fmt.Errorf("decode config file %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			slog.Default().Warn("fail close config file", "path", path, "error", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Hostname = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(cfg.Hostname), "."))
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Cloudflare.APIURL == "" {
		cfg.Cloudflare.APIURL = defaultAPIURL
	}
	if cfg.Cloudflare.RateLimit <= 0 {
		cfg.Cloudflare.RateLimit = defaultRateLimit
	}
	if cfg.Resolver.URL == "" {
		cfg.Resolver.URL = defaultResolverURL
	}
	if cfg.Reconcile.Primary == "" {
		cfg.Reconcile.Primary = defaultPrimary
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = defaultMetricsJob
	}

	// Set log defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	if cfg.Log.Env == "" {
		cfg.Log.Env = defaultLogEnv
	}
}

func applyEnv(cfg *Config) {
	if hostname := getenv("HOSTNAME"); hostname != "" {
		cfg.Hostname = hostname
	}
	if zoneID := getenv("ZONE_ID"); zoneID != "" {
		cfg.Cloudflare.ZoneID = zoneID
	}
	if token := getenv("TOKEN"); token != "" {
		cfg.Cloudflare.Token = token
	} else if token := os.Getenv("CLOUDFLARE_API_TOKEN"); token != "" && cfg.Cloudflare.Token == "" {
		cfg.Cloudflare.Token = token
	}
	if apiURL := getenv("API_URL"); apiURL != "" {
		cfg.Cloudflare.APIURL = apiURL
	}
	if ttl := getenv("TTL"); ttl != "" {
		if v, err := strconv.Atoi(ttl); err == nil {
			cfg.Cloudflare.TTL = v
		} else {
			slog.Default().Warn("fail parse ttl to int from string", "ttl", ttl, "error", err)
		}
	}
	if proxied := getenv("PROXIED"); proxied != "" {
		if v, ok := parseBool(proxied); ok {
			cfg.Cloudflare.Proxied = &v
		} else {
			slog.Default().Warn("fail parse proxied to bool from string", "proxied", proxied)
		}
	}
	if rateLimit := getenv("RATE_LIMIT"); rateLimit != "" {
		if v, err := strconv.ParseFloat(rateLimit, 64); err == nil {
			cfg.Cloudflare.RateLimit = v
		} else {
			slog.Default().Warn("fail parse rate limit to float from string", "rateLimit", rateLimit, "error", err)
		}
	}
	if resolverURL := getenv("RESOLVER_URL"); resolverURL != "" {
		cfg.Resolver.URL = resolverURL
	}
	if validate := getenv("RESOLVER_VALIDATE"); validate != "" {
		if v, ok := parseBool(validate); ok {
			cfg.Resolver.Validate = &v
		} else {
			slog.Default().Warn("fail parse resolver validate to bool from string", "validate", validate)
		}
	}
	if timeout := getenv("TIMEOUT"); timeout != "" {
		if v, err := time.ParseDuration(timeout); err == nil {
			cfg.Timeout = v
		} else {
			slog.Default().Warn("fail parse timeout to duration from string", "timeout", timeout, "error", err)
		}
	}
	if dryRun := getenv("DRYRUN"); dryRun != "" {
		if v, ok := parseBool(dryRun); ok {
			cfg.Reconcile.DryRun = v
		} else {
			slog.Default().Warn("fail parse dryrun to bool from string", "dryrun", dryRun)
		}
	}
	if primary := getenv("PRIMARY"); primary != "" {
		cfg.Reconcile.Primary = primary
	}
	if statePath := getenv("STATE_PATH"); statePath != "" {
		cfg.StatePath = statePath
	}
	if limit := getenv("HISTORY_LIMIT"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil {
			cfg.HistoryLimit = v
		} else {
			slog.Default().Warn("fail parse history limit to int from string", "limit", limit, "error", err)
		}
	}
	if pushURL := getenv("PUSHGATEWAY_URL"); pushURL != "" {
		cfg.Metrics.PushgatewayURL = pushURL
	}
	if job := getenv("METRICS_JOB"); job != "" {
		cfg.Metrics.Job = job
	}
	if textfile := getenv("TEXTFILE_PATH"); textfile != "" {
		cfg.Metrics.TextfilePath = textfile
	}
	if loglevel := getenv("LOG_LEVEL"); loglevel != "" {
		cfg.Log.Level = loglevel
	}
	if logenv := getenv("LOG_ENV"); logenv != "" {
		cfg.Log.Env = logenv
	}
}

// Validate reports the first setting that would make a sync impossible.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("hostname required")
	}
	if c.Cloudflare.ZoneID == "" {
		return errors.New("cloudflare zone id required")
	}
	if c.Cloudflare.Token == "" {
		return errors.New("cloudflare api token required")
	}
	switch c.Reconcile.Primary {
	case PrimaryFirst, PrimaryLowestID:
	default:
		return fmt.Errorf("unknown primary record policy %q", c.Reconcile.Primary)
	}
	if c.Cloudflare.TTL < 0 {
		return fmt.Errorf("ttl must not be negative, got %d", c.Cloudflare.TTL)
	}
	return nil
}

func getenv(key string) string {
	return os.Getenv(envPrefix + key)
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	}
	return false, false
}

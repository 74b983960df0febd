// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/masterlist/internal/logger"
	"github.com/woozymasta/masterlist/internal/registry"
	"github.com/woozymasta/masterlist/internal/vars"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Server    Server        `group:"Server Options" env-namespace:"MASTERLIST"`
	Storage   Storage       `group:"Storage Options" namespace:"db" env-namespace:"MASTERLIST_DB"`
	Registry  Registry      `group:"Registry Options" namespace:"registry" env-namespace:"MASTERLIST_REGISTRY"`
	Auth      Auth          `group:"Auth Options" namespace:"auth" env-namespace:"MASTERLIST_AUTH"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"MASTERLIST_RATE_LIMIT"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"MASTERLIST_GEOIP"`
	A2S       A2S           `group:"A2S Options" namespace:"a2s" env-namespace:"MASTERLIST_A2S"`
	Simulate  Simulate      `group:"Simulation Options" namespace:"sim" env-namespace:"MASTERLIST_SIM"`
	Stress    Stress        `group:"Stress Options" namespace:"stress" env-namespace:"MASTERLIST_STRESS"`
	Tasks     Tasks         `group:"Maintenance Tasks"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"MASTERLIST_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Server holds web server configuration.
type Server struct {
	// betteralign:ignore

	Address     string `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":8080"`
	AuthToken   string `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin authentication token"`
	SetupFile   string `long:"setup-file" env:"SETUP_FILE" description:"Flag file marking the initial setup as complete (empty: always complete)" default:"masterlist.setup"`
	MaxBodySize int64  `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for incoming requests" default:"65536"`
	Workers     int    `long:"workers" env:"WORKERS" description:"Background workers recording API key usage" default:"4"`
	QueueSize   int    `long:"queue-size" env:"QUEUE_SIZE" description:"API key usage queue capacity" default:"1000"`
	TrustProxy  bool   `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
}

// Storage holds database configuration.
type Storage struct {
	// betteralign:ignore

	Path string `short:"d" long:"path" env:"PATH" description:"Path to SQLite catalog database" default:"masterlist.db"`
}

// Registry holds the liveness, stats and timeout policy of the server registry.
type Registry struct {
	// betteralign:ignore

	StaleThreshold   time.Duration `long:"stale-threshold" env:"STALE_THRESHOLD" description:"Silence after which listing and monitoring views hide a server" default:"300s"`
	SweepThreshold   time.Duration `long:"sweep-threshold" env:"SWEEP_THRESHOLD" description:"Silence after which the sweep evicts a server" default:"90s"`
	SweepInterval    time.Duration `long:"sweep-interval" env:"SWEEP_INTERVAL" description:"Stale sweep interval" default:"1m"`
	SnapshotInterval time.Duration `long:"snapshot-interval" env:"SNAPSHOT_INTERVAL" description:"Hourly stats snapshot interval" default:"1h"`
	StatsCacheTTL    time.Duration `long:"stats-cache-ttl" env:"STATS_CACHE_TTL" description:"Current stats cache lifetime" default:"60s"`
	HourlyRetention  time.Duration `long:"hourly-retention" env:"HOURLY_RETENTION" description:"Hourly stats retention" default:"24h"`
	OpTimeout        time.Duration `long:"op-timeout" env:"OP_TIMEOUT" description:"Deadline of registry store operations" default:"2s"`
}

// Options converts the configuration into registry options.
func (r Registry) Options() registry.Options {
	o := registry.DefaultOptions()
	o.ReadThreshold = r.StaleThreshold
	o.SweepThreshold = r.SweepThreshold
	o.StatsCacheTTL = r.StatsCacheTTL
	o.HourlyRetention = r.HourlyRetention
	o.OpTimeout = r.OpTimeout
	return o
}

// Auth holds server request signing configuration.
type Auth struct {
	// betteralign:ignore

	HMACTolerance time.Duration `long:"hmac-tolerance" env:"HMAC_TOLERANCE" description:"Accepted clock skew of signed requests" default:"300s"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file used as region fallback (empty: disabled)"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
}

// A2S holds Source Query protocol configuration.
type A2S struct {
	// betteralign:ignore

	Timeout    time.Duration `long:"timeout" env:"TIMEOUT" description:"Query timeout" default:"3s"`
	BufferSize uint16        `long:"buffer-size" env:"BUFFER_SIZE" description:"Response body buffer size" default:"1400"`
}

// RateLimit holds per IP rate limiting of the public route classes.
type RateLimit struct {
	// betteralign:ignore

	APICount    int           `long:"api" env:"API" description:"Client listing requests per window and IP" default:"60"`
	ServerCount int           `long:"server" env:"SERVER" description:"Server register/heartbeat requests per window and IP" default:"120"`
	Window      time.Duration `long:"window" env:"WINDOW" description:"Rate limit window" default:"1m"`
}

// Simulate holds the synthetic load generator options. Simulated servers live in the
// in-memory registry of the running service, so they are seeded before the server starts.
type Simulate struct {
	// betteralign:ignore

	Servers   int           `long:"servers" description:"Register N synthetic servers per active game"`
	Game      int64         `long:"game" description:"Restrict simulation to one app id"`
	History   bool          `long:"history" description:"Fill the last 24 hourly buckets with synthetic history"`
	Clear     bool          `long:"clear" description:"Remove every server of the simulated games first"`
	Keepalive time.Duration `long:"keepalive" description:"Keep serving and send random heartbeats to simulated servers at this interval"`
}

// Enabled reports whether any simulation option is set.
func (s Simulate) Enabled() bool {
	return s.Servers > 0 || s.History || s.Clear
}

// Stress holds the stress tool options. Like the simulation it seeds the running service.
type Stress struct {
	// betteralign:ignore

	Games    int   `long:"games" description:"Create N random games with 2..8 servers each"`
	FillMB   int   `long:"fill-mb" description:"Fill one game namespace until it holds about M MB"`
	FillGame int64 `long:"fill-game" description:"App id filled by --stress-fill-mb (default: first active game)"`
}

// Enabled reports whether any stress option is set.
func (s Stress) Enabled() bool {
	return s.Games > 0 || s.FillMB > 0
}

// Tasks are one-shot maintenance commands.
type Tasks struct {
	// betteralign:ignore

	SetupReset bool   `long:"setup-reset" description:"Remove the setup flag file and exit"`
	CreateGame string `long:"create-game" description:"Create a game from \"<appid>:<name>\", print a new API key pair and exit"`
}

// ParseGameSpec splits "<appid>:<name>".
func ParseGameSpec(v string) (int64, string, error) {
	id, name, ok := strings.Cut(v, ":")
	if !ok || strings.TrimSpace(name) == "" {
		return 0, "", errors.New(`expected "<appid>:<name>"`)
	}
	appID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || appID < 1 {
		return 0, "", fmt.Errorf("invalid app id %q", id)
	}
	return appID, strings.TrimSpace(name), nil
}

// ParseArgs reads the configuration from args and environment variables.
func ParseArgs(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.Version {
		return &cfg, nil
	}
	if cfg.Tasks.CreateGame != "" {
		if _, _, err := ParseGameSpec(cfg.Tasks.CreateGame); err != nil {
			return nil, fmt.Errorf("--create-game: %w", err)
		}
	}
	if cfg.Registry.SweepThreshold <= 0 || cfg.Registry.StaleThreshold <= 0 {
		return nil, errors.New("registry thresholds must be positive")
	}

	return &cfg, nil
}

// Parse reads the configuration from the command line and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print(os.Stdout)
		os.Exit(0)
	}

	if cfg.Server.AuthToken == "" {
		fmt.Fprintln(os.Stderr,
			"Required flag `-t, --auth-token' or environment variable `MASTERLIST_AUTH_TOKEN` was not specified!")
		os.Exit(1)
	}

	return cfg
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vortexpixelz/datax-research-terminal/internal/indicator"
	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Polygon.io; an empty key selects the simulated feed and bars.
	PolygonAPIKey  string
	PolygonWSURL   string
	PolygonRESTRPS float64
	PolygonBurst   int

	// Infrastructure; an empty address or path disables the tier.
	HTTPAddr       string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SQLitePath     string
	BarCacheTTL    time.Duration
	HealthInterval time.Duration
	CORSOrigin     string
	LogLevel       string

	// Stream fan-out
	ReconnectDelay  time.Duration
	Heartbeat       time.Duration
	SinkBuffer      int
	NarrowBroadcast bool
	SimInterval     time.Duration

	// Optional YAML file named by TERMINAL_CONFIG.
	ConfigFile string
	File
}

// File is the optional YAML configuration.
type File struct {
	Watchlist  []string `yaml:"watchlist"`
	Indicators []string `yaml:"indicators"`
	Prefixes   []string `yaml:"prefixes"`
}

// Load reads an optional .env, then environment variables with defaults,
// then the YAML file if TERMINAL_CONFIG is set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	var p parser
	cfg := &Config{
		PolygonAPIKey:  getEnv("POLYGON_API_KEY", ""),
		PolygonWSURL:   getEnv("POLYGON_WS_URL", "wss://socket.polygon.io/stocks"),
		PolygonRESTRPS: p.float("POLYGON_REST_RPS", 5),
		PolygonBurst:   p.int("POLYGON_REST_BURST", 1),

		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        p.int("REDIS_DB", 0),
		SQLitePath:     getEnv("SQLITE_PATH", "data/bars.db"),
		BarCacheTTL:    p.duration("BAR_CACHE_TTL", 5*time.Minute),
		HealthInterval: p.duration("HEALTH_CHECK_INTERVAL", 15*time.Second),
		CORSOrigin:     getEnv("CORS_ORIGIN", "*"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		ReconnectDelay:  p.duration("RECONNECT_DELAY", 5*time.Second),
		Heartbeat:       p.duration("SSE_HEARTBEAT", 30*time.Second),
		SinkBuffer:      p.int("SINK_BUFFER", 256),
		NarrowBroadcast: p.bool("NARROW_BROADCAST", false),
		SimInterval:     p.duration("SIM_TICK_INTERVAL", time.Second),

		ConfigFile: getEnv("TERMINAL_CONFIG", ""),
		File: File{
			Watchlist: model.SplitSymbols(getEnv("WATCHLIST", "")),
			Prefixes:  []string{model.EventTrade, model.EventSecondAgg},
		},
	}
	if len(p.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(p.errs...))
	}

	if cfg.ConfigFile != "" {
		f, err := LoadFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg.merge(f)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile parses the YAML configuration at path.
func LoadFile(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse config from YAML: %w", err)
	}
	return f, nil
}

func (c *Config) merge(f File) {
	if len(f.Watchlist) > 0 {
		c.Watchlist = model.NormalizeSymbols(f.Watchlist)
	}
	if len(f.Indicators) > 0 {
		c.Indicators = f.Indicators
	}
	if len(f.Prefixes) > 0 {
		c.Prefixes = f.Prefixes
	}
}

var knownPrefixes = map[string]bool{
	model.EventTrade:     true,
	model.EventSecondAgg: true,
	model.EventMinuteAgg: true,
	"Q":                  true,
}

// Validate performs basic configuration validation.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http address cannot be empty")
	}
	if c.PolygonRESTRPS <= 0 || c.PolygonBurst <= 0 {
		return fmt.Errorf("polygon rate limit must be positive (rps=%v burst=%d)", c.PolygonRESTRPS, c.PolygonBurst)
	}
	if c.ReconnectDelay <= 0 || c.Heartbeat <= 0 || c.SimInterval <= 0 || c.HealthInterval <= 0 {
		return fmt.Errorf("reconnect delay, heartbeat, sim interval and health interval must be positive")
	}
	if c.SinkBuffer <= 0 {
		return fmt.Errorf("sink buffer must be positive: %d", c.SinkBuffer)
	}
	if len(c.Prefixes) == 0 {
		return fmt.Errorf("at least one event prefix is required")
	}
	for _, pfx := range c.Prefixes {
		if !knownPrefixes[pfx] {
			return fmt.Errorf("unknown event prefix %q", pfx)
		}
	}
	for _, s := range c.Indicators {
		if _, err := indicator.ParseSpec(s); err != nil {
			return fmt.Errorf("indicator preset: %w", err)
		}
	}
	return nil
}

// Simulated reports whether no Polygon key is configured.
func (c *Config) Simulated() bool {
	return c.PolygonAPIKey == ""
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// parser collects parse failures so Load reports every bad variable at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (p *parser) bool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

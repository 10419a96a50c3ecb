package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POLYGON_API_KEY", "")
	t.Setenv("TERMINAL_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Simulated() {
		t.Error("no key should select the simulated feed")
	}
	if cfg.ReconnectDelay != 5*time.Second || cfg.Heartbeat != 30*time.Second {
		t.Errorf("stream defaults: reconnect=%s heartbeat=%s", cfg.ReconnectDelay, cfg.Heartbeat)
	}
	if !reflect.DeepEqual(cfg.Prefixes, []string{"T", "A"}) {
		t.Errorf("default prefixes=%v", cfg.Prefixes)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POLYGON_API_KEY", "k")
	t.Setenv("RECONNECT_DELAY", "2s")
	t.Setenv("NARROW_BROADCAST", "true")
	t.Setenv("WATCHLIST", "msft, aapl,msft")
	t.Setenv("TERMINAL_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Simulated() || cfg.ReconnectDelay != 2*time.Second || !cfg.NarrowBroadcast {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Watchlist, []string{"AAPL", "MSFT"}) {
		t.Errorf("watchlist=%v", cfg.Watchlist)
	}
}

func TestLoad_ReportsEveryBadVariable(t *testing.T) {
	t.Setenv("SINK_BUFFER", "lots")
	t.Setenv("SSE_HEARTBEAT", "often")
	t.Setenv("TERMINAL_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected parse errors")
	}
	for _, key := range []string{"SINK_BUFFER", "SSE_HEARTBEAT"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terminal.yaml")
	yml := "watchlist: [nvda, aapl]\nindicators: [\"SMA:20\", \"MACD:12,26,9\"]\nprefixes: [T, AM]\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TERMINAL_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg.Watchlist, []string{"AAPL", "NVDA"}) {
		t.Errorf("watchlist=%v", cfg.Watchlist)
	}
	if !reflect.DeepEqual(cfg.Prefixes, []string{"T", "AM"}) {
		t.Errorf("prefixes=%v", cfg.Prefixes)
	}
	if len(cfg.Indicators) != 2 {
		t.Errorf("indicators=%v", cfg.Indicators)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			HTTPAddr: ":8080", PolygonRESTRPS: 5, PolygonBurst: 1,
			ReconnectDelay: time.Second, Heartbeat: time.Second, SimInterval: time.Second,
			HealthInterval: time.Second, SinkBuffer: 8,
			File: File{Prefixes: []string{"T"}},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.HTTPAddr = "" }},
		{"zero rate", func(c *Config) { c.PolygonRESTRPS = 0 }},
		{"zero reconnect", func(c *Config) { c.ReconnectDelay = 0 }},
		{"zero buffer", func(c *Config) { c.SinkBuffer = 0 }},
		{"no prefixes", func(c *Config) { c.Prefixes = nil }},
		{"unknown prefix", func(c *Config) { c.Prefixes = []string{"XQ"} }},
		{"bad preset", func(c *Config) { c.Indicators = []string{"WMA:5"} }},
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

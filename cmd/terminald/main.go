// cmd/terminald serves the research terminal's market core: the shared
// upstream ticker fan-out over SSE, historical bars and indicator series.
//
// Without POLYGON_API_KEY it runs on simulated market data.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/vortexpixelz/datax-research-terminal/config"
	"github.com/vortexpixelz/datax-research-terminal/internal/gateway"
	"github.com/vortexpixelz/datax-research-terminal/internal/indicator"
	"github.com/vortexpixelz/datax-research-terminal/internal/logger"
	"github.com/vortexpixelz/datax-research-terminal/internal/marketdata/history"
	"github.com/vortexpixelz/datax-research-terminal/internal/marketdata/sim"
	"github.com/vortexpixelz/datax-research-terminal/internal/metrics"
	"github.com/vortexpixelz/datax-research-terminal/internal/model"
	"github.com/vortexpixelz/datax-research-terminal/internal/polygon"
	redisstore "github.com/vortexpixelz/datax-research-terminal/internal/store/redis"
	sqlitestore "github.com/vortexpixelz/datax-research-terminal/internal/store/sqlite"
	"github.com/vortexpixelz/datax-research-terminal/internal/stream"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminald: %v\n", err)
		os.Exit(1)
	}
	log := logger.Init("terminald", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("terminald exited", "error", err)
		os.Exit(1)
	}
	log.Info("terminald stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	m := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	feed, remote := sources(cfg, m, log)

	loaderCfg := history.Config{Remote: remote, Metrics: m, Logger: log}

	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		client, err := redisstore.Connect(ctx, redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			log.Warn("redis unavailable, bar cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			rdb = client
			defer rdb.Close()
			loaderCfg.Cache = redisstore.NewBarCache(rdb, cfg.BarCacheTTL, nil, m, log)
			log.Info("redis connected", "addr", cfg.RedisAddr)
		}
	}

	var store *sqlitestore.Store
	if cfg.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("sqlite dir: %w", err)
		}
		s, err := sqlitestore.Open(cfg.SQLitePath, log)
		if err != nil {
			return err
		}
		store = s
		defer store.Close()
		loaderCfg.Store = store
		log.Info("bar store opened", "path", cfg.SQLitePath)
	}

	hub := stream.NewHub(feed, stream.HubConfig{
		Prefixes:        cfg.Prefixes,
		ReconnectDelay:  cfg.ReconnectDelay,
		NarrowBroadcast: cfg.NarrowBroadcast,
	}, m, log)

	engine := indicator.NewEngine(func(k indicator.Kind, d time.Duration) {
		m.IndicatorComputeDur.WithLabelValues(string(k)).Observe(d.Seconds())
	})

	srv := gateway.NewServer(gateway.Options{
		Hub:        hub,
		Bars:       history.NewLoader(loaderCfg),
		Engine:     engine,
		Health:     health,
		Gatherer:   prometheus.DefaultGatherer,
		Logger:     log,
		CORSOrigin: cfg.CORSOrigin,
		Heartbeat:  cfg.Heartbeat,
		SinkBuffer: cfg.SinkBuffer,
		Watchlist:  cfg.Watchlist,
		Indicators: cfg.Indicators,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Streams end when the process context does.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	var sqlDB *sql.DB
	if store != nil {
		sqlDB = store.DB()
	}
	health.StartLivenessChecker(ctx, rdb, sqlDB, cfg.HealthInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr, "simulated", cfg.Simulated())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shCtx)
	})
	return g.Wait()
}

// sources picks the live Polygon feed and REST source, or their simulated
// stand-ins when no key is configured.
func sources(cfg *config.Config, m *metrics.Metrics, log *slog.Logger) (stream.Feed, model.BarSource) {
	if cfg.Simulated() {
		log.Warn("POLYGON_API_KEY not set, using simulated market data")
		return sim.NewFeed(cfg.SimInterval), sim.NewSource()
	}
	return polygon.NewFeed(cfg.PolygonAPIKey, cfg.PolygonWSURL, log),
		polygon.NewRESTSource(cfg.PolygonAPIKey, cfg.PolygonRESTRPS, cfg.PolygonBurst, m, log)
}

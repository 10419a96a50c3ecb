// cmd/indcalc loads historical bars for one symbol and prints indicator
// series as JSON, using the same loader and engine as terminald.
//
// Usage:
//
//	go run ./cmd/indcalc --symbol=AAPL --from=2025-01-01 --to=2025-06-30 --specs=SMA:20,RSI:14,MACD:12,26,9
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vortexpixelz/datax-research-terminal/config"
	"github.com/vortexpixelz/datax-research-terminal/internal/indicator"
	"github.com/vortexpixelz/datax-research-terminal/internal/logger"
	"github.com/vortexpixelz/datax-research-terminal/internal/marketdata/history"
	"github.com/vortexpixelz/datax-research-terminal/internal/marketdata/sim"
	"github.com/vortexpixelz/datax-research-terminal/internal/model"
	"github.com/vortexpixelz/datax-research-terminal/internal/polygon"
	sqlitestore "github.com/vortexpixelz/datax-research-terminal/internal/store/sqlite"
)

type options struct {
	symbol   string
	timespan string
	from     string
	to       string
	days     int
	specs    string
	db       string
	simulate bool
	pretty   bool
}

type output struct {
	Symbol   string             `json:"symbol"`
	Timespan model.Timespan     `json:"timespan"`
	From     time.Time          `json:"from"`
	To       time.Time          `json:"to"`
	Bars     int                `json:"bars"`
	Series   []indicator.Series `json:"series"`
}

func main() {
	var o options
	flag.StringVar(&o.symbol, "symbol", "", "Ticker symbol (required)")
	flag.StringVar(&o.timespan, "timespan", "day", "Bar size: minute, hour, day, week, month")
	flag.StringVar(&o.from, "from", "", "Range start: YYYY-MM-DD, RFC3339 or epoch ms (default: --days before --to)")
	flag.StringVar(&o.to, "to", "", "Range end (default: now)")
	flag.IntVar(&o.days, "days", 180, "Lookback in days when --from is empty")
	flag.StringVar(&o.specs, "specs", "SMA:20,EMA:20,RSI:14,MACD:12,26,9,BB:20,2,ATR:14", "Indicator specs")
	flag.StringVar(&o.db, "db", "", "Optional SQLite bar store path")
	flag.BoolVar(&o.simulate, "sim", false, "Use simulated bars even if POLYGON_API_KEY is set")
	flag.BoolVar(&o.pretty, "pretty", false, "Indent JSON output")
	flag.Parse()

	log := logger.New(os.Stderr, "indcalc", slog.LevelWarn)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout, log); err != nil {
		fmt.Fprintf(os.Stderr, "indcalc: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, w io.Writer, log *slog.Logger) error {
	q, err := query(o, time.Now())
	if err != nil {
		return err
	}
	specs, err := indicator.ParseSpecs(o.specs)
	if err != nil {
		return err
	}

	var remote model.BarSource = sim.NewSource()
	if !o.simulate {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if !cfg.Simulated() {
			remote = polygon.NewRESTSource(cfg.PolygonAPIKey, cfg.PolygonRESTRPS, cfg.PolygonBurst, nil, log)
		}
	}

	loaderCfg := history.Config{Remote: remote, Logger: log}
	if o.db != "" {
		store, err := sqlitestore.Open(o.db, log)
		if err != nil {
			return err
		}
		defer store.Close()
		loaderCfg.Store = store
	}

	bars, err := history.NewLoader(loaderCfg).Bars(ctx, q)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	if o.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(output{
		Symbol:   q.Symbol,
		Timespan: q.Timespan,
		From:     q.From,
		To:       q.To,
		Bars:     len(bars),
		Series:   indicator.NewEngine(nil).Compute(bars, specs),
	})
}

func query(o options, now time.Time) (model.BarQuery, error) {
	symbol := model.NormalizeSymbol(o.symbol)
	if symbol == "" {
		return model.BarQuery{}, fmt.Errorf("--symbol is required")
	}
	ts, err := model.ParseTimespan(o.timespan)
	if err != nil {
		return model.BarQuery{}, err
	}

	to := now.UTC()
	if strings.TrimSpace(o.to) != "" {
		if to, err = model.ParseTime(o.to); err != nil {
			return model.BarQuery{}, fmt.Errorf("--to: %w", err)
		}
	}
	from := to.AddDate(0, 0, -o.days)
	if strings.TrimSpace(o.from) != "" {
		if from, err = model.ParseTime(o.from); err != nil {
			return model.BarQuery{}, fmt.Errorf("--from: %w", err)
		}
	}
	if to.Before(from) {
		return model.BarQuery{}, fmt.Errorf("--to is before --from")
	}
	return model.BarQuery{Symbol: symbol, Timespan: ts, From: from, To: to}, nil
}

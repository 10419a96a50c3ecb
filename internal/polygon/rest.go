package polygon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	polygonrest "github.com/polygon-io/client-go/rest"
	rmodels "github.com/polygon-io/client-go/rest/models"
	"golang.org/x/time/rate"

	"github.com/vortexpixelz/datax-research-terminal/internal/metrics"
	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

// maxAggsLimit is the largest page Polygon serves for aggregates.
const maxAggsLimit = 50000

// RESTSource loads historical aggregates. It implements model.BarSource.
// Requests are paced by a token bucket so a burst of chart loads cannot
// exhaust the plan's request quota.
type RESTSource struct {
	limiter *rate.Limiter
	fetch   func(ctx context.Context, p *rmodels.ListAggsParams) ([]model.Bar, error)
	m       *metrics.Metrics
	log     *slog.Logger
}

// NewRESTSource creates a source allowing perSecond requests with the given burst.
func NewRESTSource(apiKey string, perSecond float64, burst int, m *metrics.Metrics, log *slog.Logger) *RESTSource {
	if log == nil {
		log = slog.Default()
	}
	if burst < 1 {
		burst = 1
	}
	client := polygonrest.NewWithClient(apiKey, &http.Client{Timeout: 15 * time.Second})
	s := &RESTSource{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		m:       m,
		log:     log.With("component", "polygon_rest"),
	}
	s.fetch = func(ctx context.Context, p *rmodels.ListAggsParams) ([]model.Bar, error) {
		return listAggs(ctx, client, p)
	}
	return s
}

var _ model.BarSource = (*RESTSource)(nil)

// Bars fetches adjusted aggregates for q in ascending order.
func (s *RESTSource) Bars(ctx context.Context, q model.BarQuery) ([]model.Bar, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("polygon rate limit: %w", err)
	}
	if s.m != nil {
		s.m.RemoteRateWaited.Inc()
	}

	start := time.Now()
	bars, err := s.fetch(ctx, aggsParams(q))
	if err != nil {
		return nil, fmt.Errorf("polygon aggs %s %s: %w", q.Symbol, q.Timespan, err)
	}
	s.log.Debug("aggregates fetched", "symbol", q.Symbol, "timespan", q.Timespan,
		"bars", len(bars), "took", time.Since(start))
	return bars, nil
}

func aggsParams(q model.BarQuery) *rmodels.ListAggsParams {
	p := &rmodels.ListAggsParams{
		Ticker:     strings.ToUpper(q.Symbol),
		Timespan:   restTimespan(q.Timespan),
		Multiplier: 1,
		From:       rmodels.Millis(q.From),
		To:         rmodels.Millis(q.To),
	}
	lim := maxAggsLimit
	asc := rmodels.Asc
	adj := true
	p.Limit = &lim
	p.Order = &asc
	p.Adjusted = &adj
	return p
}

func restTimespan(ts model.Timespan) rmodels.Timespan {
	switch ts {
	case model.Minute:
		return rmodels.Minute
	case model.Hour:
		return rmodels.Hour
	case model.Week:
		return rmodels.Week
	case model.Month:
		return rmodels.Month
	default:
		return rmodels.Day
	}
}

func listAggs(ctx context.Context, client *polygonrest.Client, p *rmodels.ListAggsParams) ([]model.Bar, error) {
	iter := client.ListAggs(ctx, p)
	var bars []model.Bar
	for iter.Next() {
		a := iter.Item()
		bars = append(bars, model.Bar{
			Timestamp: time.Time(a.Timestamp).UnixMilli(),
			Open:      a.Open,
			High:      a.High,
			Low:       a.Low,
			Close:     a.Close,
			Volume:    a.Volume,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return bars, nil
}

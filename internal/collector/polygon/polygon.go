// Package polygon reads forex and metal aggregates from Polygon.io.
package polygon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	polygonrest "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"golang.org/x/time/rate"

	"github.com/newthinker/aurum/internal/core"
)

type span struct {
	multiplier int
	timespan   models.Timespan
	bar        time.Duration
}

var spans = map[string]span{
	"M1":  {1, models.Minute, time.Minute},
	"M5":  {5, models.Minute, 5 * time.Minute},
	"M15": {15, models.Minute, 15 * time.Minute},
	"M30": {30, models.Minute, 30 * time.Minute},
	"H1":  {1, models.Hour, time.Hour},
	"H4":  {4, models.Hour, 4 * time.Hour},
	"D1":  {1, models.Day, 24 * time.Hour},
}

// Polygon implements collector.Source over the aggregates endpoint.
// Requests share one limiter sized for the free tier.
type Polygon struct {
	rest    *polygonrest.Client
	limiter *rate.Limiter
	tickers map[string]string
	now     func() time.Time
}

// Option configures a Polygon source.
type Option func(*Polygon)

// WithHTTPClient replaces the client handed to the REST SDK.
func WithHTTPClient(apiKey string, c *http.Client) Option {
	return func(p *Polygon) { p.rest = polygonrest.NewWithClient(apiKey, c) }
}

// WithTicker maps symbol onto a Polygon ticker such as C:XAUUSD.
func WithTicker(symbol, ticker string) Option {
	return func(p *Polygon) {
		if ticker != "" {
			p.tickers[strings.ToUpper(symbol)] = ticker
		}
	}
}

// WithClock injects the clock used for the query window.
func WithClock(now func() time.Time) Option {
	return func(p *Polygon) { p.now = now }
}

// New creates a source allowing perMinute requests per minute. Zero
// disables limiting.
func New(apiKey string, perMinute int, opts ...Option) *Polygon {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	p := &Polygon{
		rest:    polygonrest.NewWithClient(apiKey, &http.Client{Timeout: 10 * time.Second}),
		limiter: rate.NewLimiter(limit, 1),
		tickers: map[string]string{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Polygon) Name() string { return "polygon" }

// Ticker returns the Polygon ticker for symbol: C:<symbol> unless mapped.
func (p *Polygon) Ticker(symbol string) string {
	s := strings.ToUpper(symbol)
	if t, ok := p.tickers[s]; ok {
		return t
	}
	return "C:" + s
}

// FetchCandles pages newest-first until count bars are collected and
// returns them oldest-first.
func (p *Polygon) FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]core.OHLCV, error) {
	tf := strings.ToUpper(timeframe)
	sp, ok := spans[tf]
	if !ok {
		return nil, fmt.Errorf("polygon: unsupported timeframe %q", timeframe)
	}
	if count <= 0 {
		count = 100
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// Weekends and session gaps: look back three times the nominal span.
	to := p.now().UTC()
	from := to.Add(-3 * time.Duration(count) * sp.bar)

	params := models.ListAggsParams{
		Ticker:     p.Ticker(symbol),
		Multiplier: sp.multiplier,
		Timespan:   sp.timespan,
		From:       models.Millis(from),
		To:         models.Millis(to),
	}.WithOrder(models.Desc).WithLimit(count).WithAdjusted(true)

	iter := p.rest.ListAggs(ctx, params)
	bars := make([]core.OHLCV, 0, count)
	for len(bars) < count && iter.Next() {
		a := iter.Item()
		bars = append(bars, core.OHLCV{
			Symbol:   symbol,
			Interval: tf,
			Open:     a.Open,
			High:     a.High,
			Low:      a.Low,
			Close:    a.Close,
			Volume:   int64(a.Volume),
			Time:     time.Time(a.Timestamp).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("polygon aggregates: %w", err)
	}
	if len(bars) == 0 {
		return nil, core.ErrNoData
	}
	slices.Reverse(bars)
	return bars, nil
}

// ErrNoKey is returned by NewFromKey when no API key is configured.
var ErrNoKey = errors.New("polygon: api key not configured")

// NewFromKey is New that refuses an empty key so callers can skip the
// source.
func NewFromKey(apiKey string, perMinute int, opts ...Option) (*Polygon, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoKey
	}
	return New(apiKey, perMinute, opts...), nil
}

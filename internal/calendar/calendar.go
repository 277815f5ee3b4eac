// Package calendar keeps the economic_events table in step with the weekly
// economic calendar: the JSON feed supplies the schedule and the HTML page
// supplies released actuals.
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/config"
	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/fetch"
	"github.com/newthinker/aurum/internal/storage/archive"
	"github.com/newthinker/aurum/internal/store"
)

// CachePath is where the last weekly feed is kept in the archive.
const CachePath = "calendar/week.json"

// Fetcher retrieves the feed and the results page.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*fetch.Response, error)
}

// Store is the event persistence the ingestor needs.
type Store interface {
	UpsertEvent(ctx context.Context, e store.EconomicEvent) error
	UpdateEventActual(ctx context.Context, title, currency string, day time.Time, actual string) (bool, error)
}

// SyncResult summarises one Sync.
type SyncResult struct {
	FromCache      bool
	Scheduled      int // High-impact items upserted
	ActualsSeen    int // rows with a released value on the page
	ActualsUpdated int
}

// Ingestor runs both calendar phases.
type Ingestor struct {
	fetcher Fetcher
	store   Store
	archive archive.Storage
	cfg     config.CalendarConfig
	site    *time.Location
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithClock injects the clock used for cache freshness and the page year.
func WithClock(now func() time.Time) Option {
	return func(in *Ingestor) { in.now = now }
}

// WithTimeout sets the per-request timeout. The default is 30s.
func WithTimeout(d time.Duration) Option {
	return func(in *Ingestor) { in.timeout = d }
}

// New creates an Ingestor. cache may be nil, which disables feed caching.
func New(f Fetcher, s Store, cache archive.Storage, cfg config.CalendarConfig, logger *zap.Logger, opts ...Option) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := config.Defaults().Calendar
	if cfg.FeedURL == "" {
		cfg.FeedURL = d.FeedURL
	}
	if cfg.PageURL == "" {
		cfg.PageURL = d.PageURL
	}
	if cfg.SiteTimezone == "" {
		cfg.SiteTimezone = d.SiteTimezone
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = d.CacheTTL
	}
	in := &Ingestor{
		fetcher: f,
		store:   s,
		archive: cache,
		cfg:     cfg,
		site:    config.Location(cfg.SiteTimezone),
		timeout: 30 * time.Second,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Sync runs the schedule sync and then the results scrape. A failure in
// one phase does not stop the other; both errors are returned joined.
func (in *Ingestor) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	n, fromCache, errSchedule := in.SyncSchedule(ctx)
	res.Scheduled, res.FromCache = n, fromCache
	if errSchedule != nil {
		in.logger.Warn("calendar schedule sync failed", zap.Error(errSchedule))
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	seen, updated, errScrape := in.ScrapeActuals(ctx)
	res.ActualsSeen, res.ActualsUpdated = seen, updated
	if errScrape != nil {
		in.logger.Warn("calendar results scrape failed", zap.Error(errScrape))
	}

	in.logger.Info("calendar synced",
		zap.Bool("from_cache", res.FromCache),
		zap.Int("scheduled", res.Scheduled),
		zap.Int("actuals_seen", res.ActualsSeen),
		zap.Int("actuals_updated", res.ActualsUpdated))
	return res, errors.Join(errSchedule, errScrape)
}

// feedItem is one entry of the weekly JSON feed.
type feedItem struct {
	Title    string `json:"title"`
	Country  string `json:"country"`
	Date     string `json:"date"`
	Impact   string `json:"impact"`
	Forecast string `json:"forecast"`
	Previous string `json:"previous"`
}

// SyncSchedule upserts every High-impact feed item and returns how many
// were written and whether the cached feed was used.
func (in *Ingestor) SyncSchedule(ctx context.Context) (int, bool, error) {
	data, fromCache, err := in.weeklyFeed(ctx)
	if err != nil {
		return 0, false, err
	}
	events, err := ParseFeed(data)
	if err != nil {
		return 0, fromCache, err
	}

	var written int
	for _, e := range events {
		if err := in.store.UpsertEvent(ctx, e); err != nil {
			return written, fromCache, err
		}
		written++
	}
	return written, fromCache, nil
}

// weeklyFeed returns the cached feed while it is fresh and refetches it
// otherwise. A stale cache is used when the refetch fails.
func (in *Ingestor) weeklyFeed(ctx context.Context) ([]byte, bool, error) {
	if in.archive != nil {
		data, ok, err := archive.ReadFresh(ctx, in.archive, CachePath, in.cfg.CacheTTL, in.now())
		if err != nil {
			in.logger.Warn("calendar cache unreadable", zap.Error(err))
		}
		if ok {
			return data, true, nil
		}
	}

	resp, err := in.fetcher.Fetch(ctx, in.cfg.FeedURL, in.timeout)
	if err != nil {
		if in.archive != nil {
			if stale, rerr := in.archive.Read(ctx, CachePath); rerr == nil && len(stale) > 0 {
				in.logger.Warn("calendar feed fetch failed, using stale cache", zap.Error(err))
				return stale, true, nil
			}
		}
		return nil, false, err
	}

	if in.archive != nil {
		if err := in.archive.Write(ctx, CachePath, resp.Body); err != nil {
			in.logger.Warn("calendar cache write failed", zap.Error(err))
		}
	}
	return resp.Body, false, nil
}

// ParseFeed decodes the weekly feed and keeps the High-impact items.
// Items with an unparseable date are skipped.
func ParseFeed(data []byte) ([]store.EconomicEvent, error) {
	var items []feedItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("decoding calendar feed: %w", err))
	}

	out := make([]store.EconomicEvent, 0, len(items))
	for _, it := range items {
		impact, ok := core.ParseImpact(it.Impact)
		if !ok || impact != core.ImpactHigh {
			continue
		}
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(it.Date))
		if err != nil {
			continue
		}
		title := strings.TrimSpace(it.Title)
		currency := strings.ToUpper(strings.TrimSpace(it.Country))
		ts = ts.UTC()
		out = append(out, store.EconomicEvent{
			ID:        store.EventID(ts, currency, title),
			Title:     title,
			Currency:  currency,
			Impact:    impact,
			Timestamp: ts,
			Forecast:  strings.TrimSpace(it.Forecast),
			Previous:  strings.TrimSpace(it.Previous),
			Status:    core.EventPending,
		})
	}
	return out, nil
}

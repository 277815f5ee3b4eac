// Package news pulls RSS feeds and article pages, keeps the items that
// mention gold or its drivers and stores them as NEW articles.
package news

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/config"
	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/fetch"
	"github.com/newthinker/aurum/internal/metrics"
	"github.com/newthinker/aurum/internal/store"
)

// Fetcher is the anti-bot HTTP client.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*fetch.Response, error)
}

// Store is the article persistence the ingestor needs.
type Store interface {
	ArticleExists(ctx context.Context, id string) (bool, error)
	InsertArticle(ctx context.Context, a store.Article) (bool, error)
}

// Options selects the run mode.
type Options struct {
	// Fast skips the web fallback and the polite delay and uses the
	// short timeout. The realtime alert runs in fast mode.
	Fast bool
	// Lookback overrides the configured age limit when positive.
	Lookback time.Duration
}

// Ingestor runs one pass over all configured sources.
type Ingestor struct {
	fetcher Fetcher
	store   Store
	cfg     config.NewsConfig
	logger  *zap.Logger
	metrics *metrics.Registry
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func(min, max time.Duration) time.Duration
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithClock injects the clock used for the lookback cutoff.
func WithClock(now func() time.Time) Option {
	return func(in *Ingestor) { in.now = now }
}

// WithSleep replaces the polite-delay sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(in *Ingestor) { in.sleep = sleep }
}

// WithJitter replaces the random delay picker.
func WithJitter(j func(min, max time.Duration) time.Duration) Option {
	return func(in *Ingestor) { in.jitter = j }
}

// WithMetrics counts stored articles per source.
func WithMetrics(m *metrics.Registry) Option {
	return func(in *Ingestor) { in.metrics = m }
}

// New creates an Ingestor. Zero config values take the package defaults.
func New(f Fetcher, s Store, cfg config.NewsConfig, logger *zap.Logger, opts ...Option) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := config.Defaults().News
	if cfg.Lookback <= 0 {
		cfg.Lookback = d.Lookback
	}
	if cfg.MinContentChars <= 0 {
		cfg.MinContentChars = d.MinContentChars
	}
	if cfg.FastTimeout <= 0 {
		cfg.FastTimeout = d.FastTimeout
	}
	if cfg.NormalTimeout <= 0 {
		cfg.NormalTimeout = d.NormalTimeout
	}
	if cfg.MaxFallbackLinks <= 0 {
		cfg.MaxFallbackLinks = d.MaxFallbackLinks
	}
	in := &Ingestor{
		fetcher: f,
		store:   s,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		sleep:   fetch.Sleep,
		jitter:  uniform,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

func uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)+1))
}

// candidate is a feed entry or discovered link awaiting its page fetch.
type candidate struct {
	link      string
	title     string
	summary   string
	published time.Time // zero when the page must provide it
}

// Ingest processes every source and returns the articles stored during
// this run. A failing source is logged and skipped; only cancellation is
// returned as an error.
func (in *Ingestor) Ingest(ctx context.Context, opts Options) ([]store.Article, error) {
	lookback := in.cfg.Lookback
	if opts.Lookback > 0 {
		lookback = opts.Lookback
	}
	cutoff := in.now().UTC().Add(-lookback)

	var stored []store.Article
	for _, src := range in.cfg.Sources {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		got, err := in.ingestSource(ctx, src, opts, cutoff)
		stored = append(stored, got...)
		if err != nil {
			if ctx.Err() != nil {
				return stored, ctx.Err()
			}
			in.logger.Warn("news source failed", zap.String("source", src.Name), zap.Error(err))
		}
	}

	in.logger.Info("news ingest finished",
		zap.Bool("fast", opts.Fast),
		zap.Int("sources", len(in.cfg.Sources)),
		zap.Int("stored", len(stored)))
	return stored, nil
}

func (in *Ingestor) timeout(opts Options) time.Duration {
	if opts.Fast {
		return in.cfg.FastTimeout
	}
	return in.cfg.NormalTimeout
}

func (in *Ingestor) ingestSource(ctx context.Context, src config.NewsSource, opts Options, cutoff time.Time) ([]store.Article, error) {
	cands, err := in.feedCandidates(ctx, src, opts)
	if len(cands) == 0 && !opts.Fast && src.WebFallbackURL != "" {
		if err != nil {
			in.logger.Debug("feed unusable, trying web fallback", zap.String("source", src.Name), zap.Error(err))
		}
		cands, err = in.discoverLinks(ctx, src, opts)
	}
	if err != nil {
		return nil, err
	}

	var (
		stored  []store.Article
		fetched int
	)
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return stored, err
		}

		exists, err := in.store.ArticleExists(ctx, c.link)
		if err != nil {
			in.logger.Warn("article lookup failed", zap.String("url", c.link), zap.Error(err))
			continue
		}
		if exists {
			continue
		}

		if !c.published.IsZero() && c.published.Before(cutoff) {
			continue
		}

		keywords := MatchKeywords(c.title+" "+c.summary, in.cfg.DirectKeywords, in.cfg.CorrelationKeywords)
		if len(keywords) == 0 {
			in.logger.Debug("no keyword match", zap.String("title", c.title))
			continue
		}

		if fetched > 0 && !opts.Fast {
			if err := in.sleep(ctx, in.jitter(in.cfg.PoliteDelayMin, in.cfg.PoliteDelayMax)); err != nil {
				return stored, err
			}
		}
		fetched++

		page, err := in.extract(ctx, c.link, opts)
		if err != nil {
			in.logger.Debug("article skipped", zap.String("url", c.link), zap.Error(err))
			continue
		}

		published := c.published
		if published.IsZero() {
			published = page.published
		}
		if published.IsZero() || published.Before(cutoff) {
			in.logger.Debug("article date missing or stale", zap.String("url", c.link))
			continue
		}

		title := c.title
		if title == "" {
			title = page.title
		}
		a := store.Article{
			ID:          c.link,
			Source:      src.Name,
			Title:       title,
			PublishedAt: published.UTC(),
			Content:     page.text,
			Keywords:    keywords,
			ImageURL:    page.image,
			Status:      core.ArticleNew,
		}
		inserted, err := in.store.InsertArticle(ctx, a)
		if err != nil {
			in.logger.Warn("article insert failed", zap.String("url", c.link), zap.Error(err))
			continue
		}
		if inserted {
			in.metrics.RecordArticle(src.Name)
			in.logger.Debug("article stored", zap.String("source", src.Name), zap.String("title", title))
			stored = append(stored, a)
		}
	}
	return stored, nil
}

// feedCandidates fetches and parses the RSS feed.
func (in *Ingestor) feedCandidates(ctx context.Context, src config.NewsSource, opts Options) ([]candidate, error) {
	if src.RSSURL == "" {
		return nil, errors.New("no rss url")
	}
	resp, err := in.fetcher.Fetch(ctx, src.RSSURL, in.timeout(opts))
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	out := make([]candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := item.Link
		if link == "" {
			link = item.GUID
		}
		link = canonicalURL(link)
		if link == "" {
			continue
		}
		published, ok := itemTime(item)
		if !ok {
			in.logger.Debug("unparseable feed date", zap.String("url", link), zap.String("published", item.Published))
			continue
		}
		out = append(out, candidate{
			link:      link,
			title:     strings.TrimSpace(item.Title),
			summary:   plainText(item.Description),
			published: published,
		})
	}
	return out, nil
}

// itemTime prefers the parser's own dates and falls back to tolerant
// parsing of the raw strings.
func itemTime(item *gofeed.Item) (time.Time, bool) {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC(), true
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC(), true
	}
	for _, raw := range []string{item.Published, item.Updated} {
		if t, ok := parseDate(raw); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// discoverLinks scrapes the index page for same-host article links whose
// slug mentions a keyword.
func (in *Ingestor) discoverLinks(ctx context.Context, src config.NewsSource, opts Options) ([]candidate, error) {
	base, err := url.Parse(src.WebFallbackURL)
	if err != nil {
		return nil, fmt.Errorf("fallback url: %w", err)
	}
	resp, err := in.fetcher.Fetch(ctx, src.WebFallbackURL, in.timeout(opts))
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing index: %w", err)
	}

	scope := doc.Selection
	if src.Selector != "" {
		scope = doc.Find(src.Selector)
	}

	seen := make(map[string]bool)
	var out []candidate
	scope.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		u := base.ResolveReference(ref)
		if u.Host != base.Host || (u.Scheme != "http" && u.Scheme != "https") {
			return true
		}
		link := canonicalURL(u.String())
		if link == "" || seen[link] {
			return true
		}
		slug := slugWords(u.Path)
		if len(MatchKeywords(slug, in.cfg.DirectKeywords, in.cfg.CorrelationKeywords)) == 0 {
			return true
		}
		seen[link] = true
		title := strings.Join(strings.Fields(a.Text()), " ")
		out = append(out, candidate{link: link, title: title, summary: slug})
		return len(out) < in.cfg.MaxFallbackLinks
	})

	in.logger.Debug("web fallback discovered links", zap.String("source", src.Name), zap.Int("links", len(out)))
	return out, nil
}

// slugWords turns the last path segment into space-separated words.
func slugWords(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		path = path[i+1:]
	}
	path = strings.TrimSuffix(path, ".html")
	return strings.Join(strings.FieldsFunc(strings.ToLower(path), func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == '+'
	}), " ")
}

// canonicalURL trims whitespace and drops the fragment.
func canonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

type page struct {
	title     string
	text      string
	image     string
	published time.Time
}

// extract fetches an article and pulls its readable text, lead image and
// publication date.
func (in *Ingestor) extract(ctx context.Context, link string, opts Options) (*page, error) {
	resp, err := in.fetcher.Fetch(ctx, link, in.timeout(opts))
	if err != nil {
		return nil, err
	}
	pageURL, _ := url.Parse(link)
	art, err := readability.FromReader(bytes.NewReader(resp.Body), pageURL)
	if err != nil {
		return nil, core.WrapError(core.ErrContentRejected, fmt.Errorf("readability: %w", err))
	}

	text := strings.TrimSpace(art.TextContent)
	if n := len([]rune(text)); n < in.cfg.MinContentChars {
		return nil, core.WrapError(core.ErrContentRejected, fmt.Errorf("body too short: %d chars", n))
	}
	if IsErrorPage(text) {
		return nil, core.WrapError(core.ErrContentRejected, errors.New("error page"))
	}

	p := &page{title: strings.TrimSpace(art.Title), text: text}
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body)); err == nil {
		p.image = metaContent(doc, "og:image", "twitter:image")
		if p.image != "" && pageURL != nil {
			if ref, err := url.Parse(p.image); err == nil {
				p.image = pageURL.ResolveReference(ref).String()
			}
		}
		if raw := metaContent(doc, "article:published_time", "og:published_time", "pubdate", "date"); raw != "" {
			p.published, _ = parseDate(raw)
		}
		if p.published.IsZero() {
			if raw, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
				p.published, _ = parseDate(raw)
			}
		}
	}
	return p, nil
}

// metaContent returns the first non-empty <meta> content among names,
// matched on either property or name.
func metaContent(doc *goquery.Document, names ...string) string {
	for _, n := range names {
		for _, attr := range []string{"property", "name"} {
			if v, ok := doc.Find(fmt.Sprintf(`meta[%s="%s"]`, attr, n)).First().Attr("content"); ok {
				if v = strings.TrimSpace(v); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// plainText strips markup from a feed summary.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

package news

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/config"
	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/fetch"
	"github.com/newthinker/aurum/internal/store"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	requests []string
	timeouts []time.Duration
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, timeout time.Duration) (*fetch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, url)
	f.timeouts = append(f.timeouts, timeout)
	body, ok := f.pages[url]
	if !ok {
		return nil, core.WrapError(core.ErrFetchNotFound, fmt.Errorf("no page %s", url))
	}
	return &fetch.Response{StatusCode: 200, Body: []byte(body), URL: url}, nil
}

func (f *fakeFetcher) fetched(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r == url {
			return true
		}
	}
	return false
}

func articleHTML(title, lead string) string {
	para := strings.Repeat(lead+" Traders weighed the outlook for bullion against real yields. ", 6)
	return `<html><head><title>` + title + `</title>
<meta property="og:image" content="/img/lead.jpg">
<meta property="article:published_time" content="2026-03-10T09:30:00Z">
</head><body><nav>Home | Markets</nav><article><h1>` + title + `</h1>
<p>` + para + `</p><p>` + para + `</p></article></body></html>`
}

func rssFeed(items ...string) string {
	return `<?xml version="1.0"?><rss version="2.0"><channel><title>Feed</title>` +
		strings.Join(items, "") + `</channel></rss>`
}

func rssItem(title, link, pub string) string {
	return `<item><title>` + title + `</title><link>` + link + `</link><description>` + title +
		`</description><pubDate>` + pub + `</pubDate></item>`
}

func testConfig(src ...config.NewsSource) config.NewsConfig {
	cfg := config.Defaults().News
	cfg.Sources = src
	cfg.DirectKeywords = []string{"gold", "xau"}
	cfg.CorrelationKeywords = []string{"fed", "dollar"}
	return cfg
}

func newTestIngestor(t *testing.T, f Fetcher, cfg config.NewsConfig) (*Ingestor, *store.DB, *[]time.Duration) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "news.db"), zap.NewNop(),
		store.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var slept []time.Duration
	in := New(f, db, cfg, zap.NewNop(),
		WithClock(func() time.Time { return testNow }),
		WithSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
		WithJitter(func(min, _ time.Duration) time.Duration { return min }),
	)
	return in, db, &slept
}

func TestIngest_RSS(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://news.test/rss": rssFeed(
			rssItem("Gold jumps as Fed pauses", "https://news.test/a/gold-jumps", "Tue, 10 Mar 2026 10:00:00 GMT"),
			rssItem("Oil slips on supply", "https://news.test/a/oil", "Tue, 10 Mar 2026 10:05:00 GMT"),
			rssItem("Dollar index climbs", "https://news.test/a/dollar#top", "Tue, 10 Mar 2026 11:00:00 GMT"),
			rssItem("Gold weekly wrap", "https://news.test/a/old", "Fri, 06 Mar 2026 10:00:00 GMT"),
			rssItem("Gold date garbage", "https://news.test/a/nodate", "sometime soon"),
		),
		"https://news.test/a/gold-jumps": articleHTML("Gold jumps", "Gold jumped as the Fed paused its tightening cycle."),
		"https://news.test/a/dollar":     `<html><body><p>Just a moment...</p></body></html>`,
	}}
	in, db, slept := newTestIngestor(t, f, testConfig(config.NewsSource{Name: "Test", RSSURL: "https://news.test/rss"}))

	stored, err := in.Ingest(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, stored, 1)

	a := stored[0]
	assert.Equal(t, "https://news.test/a/gold-jumps", a.ID)
	assert.Equal(t, "Test", a.Source)
	assert.Equal(t, "Gold jumps as Fed pauses", a.Title)
	assert.Equal(t, []string{"gold", "fed"}, a.Keywords)
	assert.Equal(t, "https://news.test/img/lead.jpg", a.ImageURL)
	assert.Equal(t, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC), a.PublishedAt)
	assert.GreaterOrEqual(t, len([]rune(a.Content)), 200)

	assert.False(t, f.fetched("https://news.test/a/oil"), "keyword filter runs before the page fetch")
	assert.False(t, f.fetched("https://news.test/a/old"), "stale items are not fetched")
	assert.False(t, f.fetched("https://news.test/a/nodate"))
	assert.True(t, f.fetched("https://news.test/a/dollar"))
	assert.Equal(t, []time.Duration{3 * time.Second}, *slept)

	exists, err := db.ArticleExists(context.Background(), "https://news.test/a/dollar")
	require.NoError(t, err)
	assert.False(t, exists, "error pages are not stored")

	pending, err := db.UnprocessedArticles(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestIngest_SkipsKnownArticles(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://news.test/rss": rssFeed(
			rssItem("Gold jumps", "https://news.test/a/gold", "Tue, 10 Mar 2026 10:00:00 GMT"),
		),
		"https://news.test/a/gold": articleHTML("Gold jumps", "Gold jumped on Tuesday."),
	}}
	in, _, _ := newTestIngestor(t, f, testConfig(config.NewsSource{Name: "Test", RSSURL: "https://news.test/rss"}))

	first, err := in.Ingest(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, first, 1)

	f.requests = nil
	second, err := in.Ingest(context.Background(), Options{})
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, []string{"https://news.test/rss"}, f.requests)
}

func TestIngest_WebFallback(t *testing.T) {
	index := `<html><body>
<div id="latest">
  <a href="/news/gold-hits-record-high">Gold hits record</a>
  <a href="/news/equities-rally">Stocks rally</a>
  <a href="https://other.test/news/gold-elsewhere">Elsewhere</a>
  <a href="/news/fed-holds-rates#comments">Fed holds</a>
</div>
<a href="/news/gold-outside-selector">Outside</a>
</body></html>`
	f := &fakeFetcher{pages: map[string]string{
		"https://site.test/rss":                        rssFeed(),
		"https://site.test/news":                       index,
		"https://site.test/news/gold-hits-record-high": articleHTML("Gold hits record", "Gold hit a record high."),
		"https://site.test/news/fed-holds-rates":       articleHTML("Fed holds", "The Fed held rates, lifting gold."),
	}}
	cfg := testConfig(config.NewsSource{
		Name:           "Site",
		RSSURL:         "https://site.test/rss",
		WebFallbackURL: "https://site.test/news",
		Selector:       "#latest",
	})
	in, _, _ := newTestIngestor(t, f, cfg)

	stored, err := in.Ingest(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, stored, 2)

	assert.Equal(t, "https://site.test/news/gold-hits-record-high", stored[0].ID)
	assert.Equal(t, "Gold hits record", stored[0].Title)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC), stored[0].PublishedAt)
	assert.Equal(t, "https://site.test/news/fed-holds-rates", stored[1].ID)

	assert.False(t, f.fetched("https://site.test/news/equities-rally"))
	assert.False(t, f.fetched("https://other.test/news/gold-elsewhere"))
	assert.False(t, f.fetched("https://site.test/news/gold-outside-selector"))
}

func TestIngest_FastMode(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://site.test/rss": rssFeed(
			rssItem("Gold spikes", "https://site.test/a/1", "Tue, 10 Mar 2026 11:58:00 GMT"),
			rssItem("XAU extends gains", "https://site.test/a/2", "Tue, 10 Mar 2026 11:59:00 GMT"),
		),
		"https://site.test/a/1":  articleHTML("Gold spikes", "Gold spiked."),
		"https://site.test/a/2":  articleHTML("XAU extends gains", "XAU extended gains."),
		"https://site.test/news": `<a href="/news/gold-x">x</a>`,
	}}
	cfg := testConfig(
		config.NewsSource{Name: "Site", RSSURL: "https://site.test/rss"},
		config.NewsSource{Name: "Empty", RSSURL: "https://site.test/missing", WebFallbackURL: "https://site.test/news"},
	)
	in, _, slept := newTestIngestor(t, f, cfg)

	stored, err := in.Ingest(context.Background(), Options{Fast: true, Lookback: 5 * time.Minute})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Empty(t, *slept, "fast mode has no polite delay")
	assert.False(t, f.fetched("https://site.test/news"), "fast mode never uses the web fallback")
	for _, d := range f.timeouts {
		assert.Equal(t, cfg.FastTimeout, d)
	}
}

func TestIngest_Cancelled(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{}}
	in, _, _ := newTestIngestor(t, f, testConfig(config.NewsSource{Name: "Test", RSSURL: "https://news.test/rss"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := in.Ingest(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSlugWords(t *testing.T) {
	assert.Equal(t, "gold hits record high", slugWords("/news/gold-hits-record-high/"))
	assert.Equal(t, "fed rate decision", slugWords("/2026/03/fed_rate.decision.html"))
}

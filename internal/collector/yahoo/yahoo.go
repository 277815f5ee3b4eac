// Package yahoo reads candles from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/newthinker/aurum/internal/core"
)

const (
	baseURL = "https://query1.finance.yahoo.com/v8/finance/chart"
)

// symbols maps terminal symbols onto Yahoo tickers.
var symbols = map[string]string{
	"XAUUSD": "GC=F",
	"XAGUSD": "SI=F",
	"EURUSD": "EURUSD=X",
	"USDJPY": "JPY=X",
}

type span struct {
	interval string
	rng      string
}

// Yahoo has no 4h bars; H4 falls through to the next source.
var spans = map[string]span{
	"M1":  {"1m", "5d"},
	"M5":  {"5m", "5d"},
	"M15": {"15m", "1mo"},
	"M30": {"30m", "1mo"},
	"H1":  {"60m", "3mo"},
	"D1":  {"1d", "2y"},
}

// Yahoo implements collector.Source.
type Yahoo struct {
	client  *http.Client
	baseURL string
	symbols map[string]string
}

// Option configures a Yahoo source.
type Option func(*Yahoo)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(y *Yahoo) { y.client = c }
}

// WithBaseURL points requests at another chart endpoint.
func WithBaseURL(u string) Option {
	return func(y *Yahoo) { y.baseURL = strings.TrimRight(u, "/") }
}

// WithSymbol overrides the ticker used for symbol.
func WithSymbol(symbol, ticker string) Option {
	return func(y *Yahoo) { y.symbols[strings.ToUpper(symbol)] = ticker }
}

// New creates a new Yahoo source.
func New(opts ...Option) *Yahoo {
	y := &Yahoo{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
		symbols: make(map[string]string, len(symbols)),
	}
	for k, v := range symbols {
		y.symbols[k] = v
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

func (y *Yahoo) Name() string {
	return "yahoo"
}

// toYahooSymbol converts a terminal symbol to a Yahoo ticker.
func (y *Yahoo) toYahooSymbol(symbol string) string {
	if t, ok := y.symbols[strings.ToUpper(symbol)]; ok {
		return t
	}
	return symbol
}

// FetchCandles fetches the trailing range for timeframe and keeps the
// last count complete bars.
func (y *Yahoo) FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]core.OHLCV, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol cannot be empty")
	}
	tf := strings.ToUpper(timeframe)
	sp, ok := spans[tf]
	if !ok {
		return nil, fmt.Errorf("yahoo: unsupported timeframe %q", timeframe)
	}

	u := fmt.Sprintf("%s/%s?interval=%s&range=%s",
		y.baseURL, url.PathEscape(y.toYahooSymbol(symbol)), sp.interval, sp.rng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if result.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo error: %s", result.Chart.Error.Description)
	}

	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, core.ErrNoData
	}

	r := result.Chart.Result[0]
	quotes := r.Indicators.Quote[0]

	data := make([]core.OHLCV, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if !quotes.complete(i) {
			continue // Skip missing data
		}
		var vol int64
		if i < len(quotes.Volume) && quotes.Volume[i] != nil {
			vol = *quotes.Volume[i]
		}
		data = append(data, core.OHLCV{
			Symbol:   symbol,
			Interval: tf,
			Open:     *quotes.Open[i],
			High:     *quotes.High[i],
			Low:      *quotes.Low[i],
			Close:    *quotes.Close[i],
			Volume:   vol,
			Time:     time.Unix(ts, 0).UTC(),
		})
	}
	if len(data) == 0 {
		return nil, core.ErrNoData
	}
	if count > 0 && len(data) > count {
		data = data[len(data)-count:]
	}
	return data, nil
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type indicators struct {
	Quote []quoteIndicator `json:"quote"`
}

type quoteIndicator struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

func (q quoteIndicator) complete(i int) bool {
	for _, s := range [][]*float64{q.Open, q.High, q.Low, q.Close} {
		if i >= len(s) || s[i] == nil {
			return false
		}
	}
	return true
}

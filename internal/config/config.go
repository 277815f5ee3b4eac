package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/aurum/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	AI         AIConfig         `mapstructure:"ai"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	LiveBlog   LiveBlogConfig   `mapstructure:"liveblog"`
	Dedupe     DedupeConfig     `mapstructure:"dedupe"`
	News       NewsConfig       `mapstructure:"news"`
	Calendar   CalendarConfig   `mapstructure:"calendar"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Trader     TraderConfig     `mapstructure:"trader"`
	Straddle   StraddleConfig   `mapstructure:"straddle"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Health     HealthConfig     `mapstructure:"health"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type AppConfig struct {
	Symbol string `mapstructure:"symbol"`
	// Timezone drives scheduler wall-clock firing.
	Timezone string `mapstructure:"timezone"`
	// DisplayTimezone is used only when rendering outbound messages.
	DisplayTimezone string `mapstructure:"display_timezone"`
	DataDir         string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	APIKey  string `mapstructure:"api_key"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type AIConfig struct {
	Provider string         `mapstructure:"provider"`
	Gemini   ProviderConfig `mapstructure:"gemini"`
	OpenAI   ProviderConfig `mapstructure:"openai"`
	Groq     ProviderConfig `mapstructure:"groq"`
	Claude   ProviderConfig `mapstructure:"claude"`
}

// ProviderConfig is shared by all LLM backends. Zero MaxAttempts and
// MaxBackoff fall back to the backend's own defaults.
type ProviderConfig struct {
	APIKeys     []string      `mapstructure:"api_keys"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// BrokerConfig holds the terminal bridge settings.
type BrokerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Provider       string        `mapstructure:"provider"` // "bridge" or "mock"
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	ReadRetries    int           `mapstructure:"read_retries"`
}

type MarketDataConfig struct {
	// Providers in priority order: terminal, yahoo, polygon.
	Providers   []string      `mapstructure:"providers"`
	YahooSymbol string        `mapstructure:"yahoo_symbol"`
	Polygon     PolygonConfig `mapstructure:"polygon"`
}

type PolygonConfig struct {
	APIKey             string `mapstructure:"api_key"`
	Ticker             string `mapstructure:"ticker"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
}

type TelegramConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BotToken      string `mapstructure:"bot_token"`
	ChatID        string `mapstructure:"chat_id"`
	APIURL        string `mapstructure:"api_url"`
	RatePerMinute int    `mapstructure:"rate_per_minute"`
}

type LiveBlogConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	User        string `mapstructure:"user"`
	AppPassword string `mapstructure:"app_password"`
	LiveBlogID  int    `mapstructure:"liveblog_id"`
	Status      string `mapstructure:"status"`
}

type DedupeConfig struct {
	Backend  string        `mapstructure:"backend"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type NewsSource struct {
	Name           string `mapstructure:"name"`
	RSSURL         string `mapstructure:"rss_url"`
	WebFallbackURL string `mapstructure:"web_fallback_url"`
	Selector       string `mapstructure:"selector"`
}

type NewsConfig struct {
	Sources             []NewsSource  `mapstructure:"sources"`
	DirectKeywords      []string      `mapstructure:"direct_keywords"`
	CorrelationKeywords []string      `mapstructure:"correlation_keywords"`
	Lookback            time.Duration `mapstructure:"lookback"`
	MinContentChars     int           `mapstructure:"min_content_chars"`
	FastTimeout         time.Duration `mapstructure:"fast_timeout"`
	NormalTimeout       time.Duration `mapstructure:"normal_timeout"`
	PoliteDelayMin      time.Duration `mapstructure:"polite_delay_min"`
	PoliteDelayMax      time.Duration `mapstructure:"polite_delay_max"`
	MaxFallbackLinks    int           `mapstructure:"max_fallback_links"`
}

type CalendarConfig struct {
	FeedURL        string        `mapstructure:"feed_url"`
	PageURL        string        `mapstructure:"page_url"`
	SiteTimezone   string        `mapstructure:"site_timezone"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	PreAlertWindow time.Duration `mapstructure:"pre_alert_window"`
}

type AlertsConfig struct {
	Lookback         time.Duration `mapstructure:"lookback"`
	UrgencyWords     []string      `mapstructure:"urgency_words"`
	OverrideKeywords []string      `mapstructure:"override_keywords"`
	TradeScore       float64       `mapstructure:"trade_score"`
	LiveBlog         bool          `mapstructure:"liveblog"`
}

type TraderConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Volume          float64       `mapstructure:"volume"`
	SignalTTL       time.Duration `mapstructure:"signal_ttl"`
	NewsSL          float64       `mapstructure:"news_sl"`
	NewsTP          float64       `mapstructure:"news_tp"`
	ReportSL        float64       `mapstructure:"report_sl"`
	ReportTP        float64       `mapstructure:"report_tp"`
	SniperSLPoints  int           `mapstructure:"sniper_sl_points"`
	SniperTPPoints  int           `mapstructure:"sniper_tp_points"`
	FlattenScore    float64       `mapstructure:"flatten_score"`
	BlackoutBefore  time.Duration `mapstructure:"blackout_before"`
	BlackoutAfter   time.Duration `mapstructure:"blackout_after"`
	VolumeTimeframe string        `mapstructure:"volume_timeframe"`
	VolumePeriod    int           `mapstructure:"volume_period"`
	LogPath         string        `mapstructure:"log_path"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	FlattenRounds   int           `mapstructure:"flatten_rounds"`
	ReportTimeframe string        `mapstructure:"report_timeframe"`
	ReportCandles   int           `mapstructure:"report_candles"`
	// Exposure caps; zero disables each.
	MaxOpenPositions int     `mapstructure:"max_open_positions"`
	MaxFloatingLoss  float64 `mapstructure:"max_floating_loss"`
	MaxVolume        float64 `mapstructure:"max_volume"`
}

type StraddleConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DistancePips float64       `mapstructure:"distance_pips"`
	SLPips       float64       `mapstructure:"sl_pips"`
	TPPips       float64       `mapstructure:"tp_pips"`
	LeadMin      time.Duration `mapstructure:"lead_min"`
	LeadMax      time.Duration `mapstructure:"lead_max"`
	CleanupAfter time.Duration `mapstructure:"cleanup_after"`
}

type ScheduleConfig struct {
	// ScanTimes are HH:MM local times; each report runs ReportOffset later.
	ScanTimes        []string      `mapstructure:"scan_times"`
	ReportOffset     time.Duration `mapstructure:"report_offset"`
	RealtimeInterval time.Duration `mapstructure:"realtime_interval"`
	EconomicInterval time.Duration `mapstructure:"economic_interval"`
	MonitorInterval  time.Duration `mapstructure:"monitor_interval"`
	// Force lifts the weekday gate.
	Force bool `mapstructure:"force"`
}

// HealthConfig drives the ops watchdog. Rules are "metric op value"
// expressions over job streaks, broker_up and open_trades.
type HealthConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	Rules    []HealthRule  `mapstructure:"rules"`
}

type HealthRule struct {
	Name     string        `mapstructure:"name"`
	Expr     string        `mapstructure:"expr"`
	For      time.Duration `mapstructure:"for"`
	Severity string        `mapstructure:"severity"`
	Message  string        `mapstructure:"message"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// envBindings maps the documented environment variables onto config keys.
var envBindings = map[string]string{
	"ai.provider":                 "AI_PROVIDER",
	"ai.gemini.api_keys":          "GEMINI_API_KEY",
	"ai.gemini.model":             "GEMINI_MODEL",
	"ai.openai.api_keys":          "OPENAI_API_KEY",
	"ai.openai.model":             "OPENAI_MODEL",
	"ai.groq.api_keys":            "GROQ_API_KEY",
	"ai.groq.model":               "GROQ_MODEL",
	"ai.claude.api_keys":          "ANTHROPIC_API_KEY",
	"telegram.bot_token":          "TELEGRAM_BOT_TOKEN",
	"telegram.chat_id":            "TELEGRAM_CHAT_ID",
	"liveblog.url":                "WP_URL",
	"liveblog.user":               "WP_USER",
	"liveblog.app_password":       "WP_APP_PASSWORD",
	"liveblog.liveblog_id":        "WP_LIVEBLOG_ID",
	"broker.host":                 "MT5_HOST",
	"broker.port":                 "MT5_PORT",
	"trader.volume":               "TRADE_VOLUME",
	"calendar.site_timezone":      "CALENDAR_TIMEZONE",
	"app.display_timezone":        "DISPLAY_TIMEZONE",
	"dedupe.redis_url":            "REDIS_URL",
	"market_data.polygon.api_key": "POLYGON_API_KEY",
}

// Load reads configuration from an optional file on top of Defaults.
// Environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.AI.normalize()
	if len(cfg.Health.Rules) == 0 {
		cfg.Health.Rules = Defaults().Health.Rules
	}

	return &cfg, nil
}

// normalize splits CSV entries that arrive as a single element, which is
// how a comma-separated env var lands after decoding from a file list.
func (a *AIConfig) normalize() {
	for _, p := range []*ProviderConfig{&a.Gemini, &a.OpenAI, &a.Groq, &a.Claude} {
		var keys []string
		for _, k := range p.APIKeys {
			for _, part := range strings.Split(k, ",") {
				if part = strings.TrimSpace(part); part != "" {
					keys = append(keys, part)
				}
			}
		}
		p.APIKeys = keys
	}
	a.Provider = strings.ToLower(strings.TrimSpace(a.Provider))
}

// setDefaults registers every default so env overrides apply even to
// keys absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("app.symbol", d.App.Symbol)
	v.SetDefault("app.timezone", d.App.Timezone)
	v.SetDefault("app.display_timezone", d.App.DisplayTimezone)
	v.SetDefault("app.data_dir", d.App.DataDir)
	v.SetDefault("logging.development", d.Logging.Development)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("server.enabled", d.Server.Enabled)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.api_key", d.Server.APIKey)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("archive.type", d.Archive.Type)
	v.SetDefault("archive.path", d.Archive.Path)
	v.SetDefault("archive.s3.region", d.Archive.S3.Region)
	v.SetDefault("ai.provider", d.AI.Provider)
	v.SetDefault("ai.gemini.model", d.AI.Gemini.Model)
	v.SetDefault("ai.gemini.api_keys", d.AI.Gemini.APIKeys)
	v.SetDefault("ai.openai.model", d.AI.OpenAI.Model)
	v.SetDefault("ai.openai.api_keys", d.AI.OpenAI.APIKeys)
	v.SetDefault("ai.groq.model", d.AI.Groq.Model)
	v.SetDefault("ai.groq.api_keys", d.AI.Groq.APIKeys)
	v.SetDefault("ai.claude.model", d.AI.Claude.Model)
	v.SetDefault("ai.claude.api_keys", d.AI.Claude.APIKeys)
	v.SetDefault("broker.enabled", d.Broker.Enabled)
	v.SetDefault("broker.provider", d.Broker.Provider)
	v.SetDefault("broker.host", d.Broker.Host)
	v.SetDefault("broker.port", d.Broker.Port)
	v.SetDefault("broker.connect_timeout", d.Broker.ConnectTimeout)
	v.SetDefault("broker.read_timeout", d.Broker.ReadTimeout)
	v.SetDefault("broker.read_retries", d.Broker.ReadRetries)
	v.SetDefault("market_data.providers", d.MarketData.Providers)
	v.SetDefault("market_data.yahoo_symbol", d.MarketData.YahooSymbol)
	v.SetDefault("market_data.polygon.api_key", d.MarketData.Polygon.APIKey)
	v.SetDefault("market_data.polygon.ticker", d.MarketData.Polygon.Ticker)
	v.SetDefault("market_data.polygon.rate_limit_per_minute", d.MarketData.Polygon.RateLimitPerMinute)
	v.SetDefault("telegram.enabled", d.Telegram.Enabled)
	v.SetDefault("telegram.bot_token", d.Telegram.BotToken)
	v.SetDefault("telegram.chat_id", d.Telegram.ChatID)
	v.SetDefault("telegram.api_url", d.Telegram.APIURL)
	v.SetDefault("telegram.rate_per_minute", d.Telegram.RatePerMinute)
	v.SetDefault("liveblog.enabled", d.LiveBlog.Enabled)
	v.SetDefault("liveblog.url", d.LiveBlog.URL)
	v.SetDefault("liveblog.user", d.LiveBlog.User)
	v.SetDefault("liveblog.app_password", d.LiveBlog.AppPassword)
	v.SetDefault("liveblog.liveblog_id", d.LiveBlog.LiveBlogID)
	v.SetDefault("liveblog.status", d.LiveBlog.Status)
	v.SetDefault("dedupe.backend", d.Dedupe.Backend)
	v.SetDefault("dedupe.redis_url", d.Dedupe.RedisURL)
	v.SetDefault("dedupe.ttl", d.Dedupe.TTL)
	v.SetDefault("news.sources", d.News.Sources)
	v.SetDefault("news.direct_keywords", d.News.DirectKeywords)
	v.SetDefault("news.correlation_keywords", d.News.CorrelationKeywords)
	v.SetDefault("news.lookback", d.News.Lookback)
	v.SetDefault("news.min_content_chars", d.News.MinContentChars)
	v.SetDefault("news.fast_timeout", d.News.FastTimeout)
	v.SetDefault("news.normal_timeout", d.News.NormalTimeout)
	v.SetDefault("news.polite_delay_min", d.News.PoliteDelayMin)
	v.SetDefault("news.polite_delay_max", d.News.PoliteDelayMax)
	v.SetDefault("news.max_fallback_links", d.News.MaxFallbackLinks)
	v.SetDefault("calendar.feed_url", d.Calendar.FeedURL)
	v.SetDefault("calendar.page_url", d.Calendar.PageURL)
	v.SetDefault("calendar.site_timezone", d.Calendar.SiteTimezone)
	v.SetDefault("calendar.cache_ttl", d.Calendar.CacheTTL)
	v.SetDefault("calendar.pre_alert_window", d.Calendar.PreAlertWindow)
	v.SetDefault("alerts.lookback", d.Alerts.Lookback)
	v.SetDefault("alerts.urgency_words", d.Alerts.UrgencyWords)
	v.SetDefault("alerts.override_keywords", d.Alerts.OverrideKeywords)
	v.SetDefault("alerts.trade_score", d.Alerts.TradeScore)
	v.SetDefault("alerts.liveblog", d.Alerts.LiveBlog)
	v.SetDefault("trader.enabled", d.Trader.Enabled)
	v.SetDefault("trader.volume", d.Trader.Volume)
	v.SetDefault("trader.signal_ttl", d.Trader.SignalTTL)
	v.SetDefault("trader.news_sl", d.Trader.NewsSL)
	v.SetDefault("trader.news_tp", d.Trader.NewsTP)
	v.SetDefault("trader.report_sl", d.Trader.ReportSL)
	v.SetDefault("trader.report_tp", d.Trader.ReportTP)
	v.SetDefault("trader.sniper_sl_points", d.Trader.SniperSLPoints)
	v.SetDefault("trader.sniper_tp_points", d.Trader.SniperTPPoints)
	v.SetDefault("trader.flatten_score", d.Trader.FlattenScore)
	v.SetDefault("trader.blackout_before", d.Trader.BlackoutBefore)
	v.SetDefault("trader.blackout_after", d.Trader.BlackoutAfter)
	v.SetDefault("trader.volume_timeframe", d.Trader.VolumeTimeframe)
	v.SetDefault("trader.volume_period", d.Trader.VolumePeriod)
	v.SetDefault("trader.log_path", d.Trader.LogPath)
	v.SetDefault("trader.max_retries", d.Trader.MaxRetries)
	v.SetDefault("trader.retry_delay", d.Trader.RetryDelay)
	v.SetDefault("trader.flatten_rounds", d.Trader.FlattenRounds)
	v.SetDefault("trader.report_timeframe", d.Trader.ReportTimeframe)
	v.SetDefault("trader.report_candles", d.Trader.ReportCandles)
	v.SetDefault("trader.max_open_positions", d.Trader.MaxOpenPositions)
	v.SetDefault("trader.max_floating_loss", d.Trader.MaxFloatingLoss)
	v.SetDefault("trader.max_volume", d.Trader.MaxVolume)
	v.SetDefault("straddle.enabled", d.Straddle.Enabled)
	v.SetDefault("straddle.distance_pips", d.Straddle.DistancePips)
	v.SetDefault("straddle.sl_pips", d.Straddle.SLPips)
	v.SetDefault("straddle.tp_pips", d.Straddle.TPPips)
	v.SetDefault("straddle.lead_min", d.Straddle.LeadMin)
	v.SetDefault("straddle.lead_max", d.Straddle.LeadMax)
	v.SetDefault("straddle.cleanup_after", d.Straddle.CleanupAfter)
	v.SetDefault("schedule.scan_times", d.Schedule.ScanTimes)
	v.SetDefault("schedule.report_offset", d.Schedule.ReportOffset)
	v.SetDefault("schedule.realtime_interval", d.Schedule.RealtimeInterval)
	v.SetDefault("schedule.economic_interval", d.Schedule.EconomicInterval)
	v.SetDefault("schedule.monitor_interval", d.Schedule.MonitorInterval)
	v.SetDefault("schedule.force", d.Schedule.Force)
	v.SetDefault("health.enabled", d.Health.Enabled)
	v.SetDefault("health.interval", d.Health.Interval)
	v.SetDefault("health.cooldown", d.Health.Cooldown)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		App: AppConfig{
			Symbol:          "XAUUSD",
			Timezone:        "Asia/Ho_Chi_Minh",
			DisplayTimezone: "Asia/Ho_Chi_Minh",
			DataDir:         "data",
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
		},
		Database: DatabaseConfig{Path: "data/aurum.db"},
		Archive:  ArchiveConfig{Type: "localfs", Path: "data/archive", S3: S3Config{Region: "us-east-1"}},
		AI: AIConfig{
			Provider: "gemini",
			Gemini:   ProviderConfig{Model: "gemini-2.0-flash"},
			OpenAI:   ProviderConfig{Model: "gpt-4o-mini"},
			Groq:     ProviderConfig{Model: "llama-3.3-70b-versatile"},
			Claude:   ProviderConfig{Model: "claude-sonnet-4-20250514"},
		},
		Broker: BrokerConfig{
			Enabled:        true,
			Provider:       "bridge",
			Host:           "127.0.0.1",
			Port:           1122,
			ConnectTimeout: 5 * time.Second,
			ReadTimeout:    5 * time.Second,
			ReadRetries:    3,
		},
		MarketData: MarketDataConfig{
			Providers:   []string{"terminal", "yahoo", "polygon"},
			YahooSymbol: "GC=F",
			Polygon:     PolygonConfig{Ticker: "C:XAUUSD", RateLimitPerMinute: 5},
		},
		Telegram: TelegramConfig{Enabled: true, RatePerMinute: 20},
		LiveBlog: LiveBlogConfig{Enabled: true, Status: "publish"},
		Dedupe:   DedupeConfig{Backend: "memory", TTL: 48 * time.Hour},
		News: NewsConfig{
			Sources: []NewsSource{
				{Name: "Kitco", RSSURL: "https://www.kitco.com/rss/KitcoNews.xml", WebFallbackURL: "https://www.kitco.com/news/"},
				{Name: "FXStreet", RSSURL: "https://www.fxstreet.com/rss/news", WebFallbackURL: "https://www.fxstreet.com/news"},
				{Name: "Investing", RSSURL: "https://www.investing.com/rss/news_11.rss", WebFallbackURL: "https://www.investing.com/news/commodities-news"},
			},
			DirectKeywords: []string{"gold", "xau", "xauusd", "bullion", "precious metal", "precious metals"},
			CorrelationKeywords: []string{
				"fed", "fomc", "powell", "interest rate", "rate cut", "rate hike", "inflation", "cpi", "pce",
				"nonfarm", "nfp", "payrolls", "dollar", "dxy", "treasury", "yields", "recession", "geopolitical",
			},
			Lookback:         24 * time.Hour,
			MinContentChars:  200,
			FastTimeout:      10 * time.Second,
			NormalTimeout:    30 * time.Second,
			PoliteDelayMin:   3 * time.Second,
			PoliteDelayMax:   6 * time.Second,
			MaxFallbackLinks: 15,
		},
		Calendar: CalendarConfig{
			FeedURL:        "https://nfs.faireconomy.media/ff_calendar_thisweek.json",
			PageURL:        "https://www.forexfactory.com/calendar?week=this",
			SiteTimezone:   "Asia/Ho_Chi_Minh",
			CacheTTL:       60 * time.Minute,
			PreAlertWindow: 30 * time.Minute,
		},
		Alerts: AlertsConfig{
			Lookback: 5 * time.Minute,
			UrgencyWords: []string{
				"breaking", "urgent", "just in", "alert", "surge", "plunge", "soar", "crash", "record",
				"emergency", "unexpected", "shock", "fed", "rate", "war", "attack", "sanction", "tariff",
				"khẩn", "nóng", "tăng vọt", "lao dốc",
			},
			OverrideKeywords: []string{
				"fed rate", "rate cut", "rate hike", "emergency cut", "war", "nuclear", "invasion", "missile",
				"default", "bank collapse", "chiến tranh", "hạt nhân", "lãi suất",
			},
			TradeScore: 5,
			LiveBlog:   true,
		},
		Trader: TraderConfig{
			Enabled:         true,
			Volume:          0.01,
			SignalTTL:       60 * time.Minute,
			NewsSL:          10,
			NewsTP:          20,
			ReportSL:        5,
			ReportTP:        10,
			SniperSLPoints:  1000,
			SniperTPPoints:  2000,
			FlattenScore:    8,
			BlackoutBefore:  30 * time.Minute,
			BlackoutAfter:   15 * time.Minute,
			VolumeTimeframe: "M15",
			VolumePeriod:    20,
			LogPath:         "data/trades.log",
			MaxRetries:      3,
			RetryDelay:      time.Second,
			FlattenRounds:   3,
			ReportTimeframe: "H1",
			ReportCandles:   200,
		},
		Straddle: StraddleConfig{
			Enabled:      true,
			DistancePips: 20,
			SLPips:       10,
			TPPips:       30,
			LeadMin:      90 * time.Second,
			LeadMax:      150 * time.Second,
			CleanupAfter: 15 * time.Minute,
		},
		Schedule: ScheduleConfig{
			ScanTimes:        []string{"07:00", "13:30", "19:00"},
			ReportOffset:     15 * time.Minute,
			RealtimeInterval: 15 * time.Minute,
			EconomicInterval: 5 * time.Minute,
			MonitorInterval:  time.Minute,
		},
		Health: HealthConfig{
			Enabled:  true,
			Interval: 5 * time.Minute,
			Cooldown: time.Hour,
			Rules: []HealthRule{
				{Name: "broker_unreachable", Expr: "broker_up == 0", For: 10 * time.Minute, Severity: "critical", Message: "terminal bridge is not answering"},
				{Name: "realtime_alert_failing", Expr: "realtime_alert_streak >= 3", Severity: "warning", Message: "realtime alerts failed three runs in a row"},
				{Name: "economic_worker_failing", Expr: "economic_worker_streak >= 3", Severity: "warning", Message: "economic worker failed three runs in a row"},
				{Name: "daily_report_failed", Expr: "daily_report_streak >= 1", Severity: "warning", Message: "the last daily report failed"},
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4317",
			ServiceName: "aurum",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("broker port must be between 1 and 65535, got %d", c.Broker.Port))
	}

	switch c.AI.Provider {
	case "", "gemini", "openai", "groq", "claude":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown ai provider %q", c.AI.Provider))
	}

	for _, tz := range []string{c.App.Timezone, c.App.DisplayTimezone, c.Calendar.SiteTimezone} {
		if _, err := time.LoadLocation(tz); err != nil {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("timezone %q: %w", tz, err))
		}
	}

	for _, hm := range c.Schedule.ScanTimes {
		if _, err := time.Parse("15:04", hm); err != nil {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("scan time %q must be HH:MM", hm))
		}
	}
	for name, d := range map[string]time.Duration{
		"realtime_interval": c.Schedule.RealtimeInterval,
		"economic_interval": c.Schedule.EconomicInterval,
		"monitor_interval":  c.Schedule.MonitorInterval,
	} {
		if d < time.Minute {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("%s must be at least one minute, got %s", name, d))
		}
	}

	if c.Trader.Enabled && c.Trader.Volume <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("trade volume must be positive, got %f", c.Trader.Volume))
	}
	if c.Trader.MaxVolume > 0 && c.Trader.Volume > c.Trader.MaxVolume {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("trade volume %s exceeds max_volume %s",
				strconv.FormatFloat(c.Trader.Volume, 'f', -1, 64), strconv.FormatFloat(c.Trader.MaxVolume, 'f', -1, 64)))
	}
	if c.Straddle.LeadMin > c.Straddle.LeadMax {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("straddle lead_min %s exceeds lead_max %s", c.Straddle.LeadMin, c.Straddle.LeadMax))
	}

	if c.Health.Enabled && c.Health.Interval < time.Minute {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("health interval must be at least one minute, got %s", c.Health.Interval))
	}

	switch c.Dedupe.Backend {
	case "", "memory":
	case "redis":
		if c.Dedupe.RedisURL == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("redis_url required when dedupe backend is redis"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown dedupe backend %q", c.Dedupe.Backend))
	}

	return nil
}

// Location resolves a validated timezone name, falling back to UTC.
func Location(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

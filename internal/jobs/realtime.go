package jobs

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/analyst"
	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/news"
	"github.com/newthinker/aurum/internal/notifier"
	"github.com/newthinker/aurum/internal/store"
)

// overrideScore is the floor applied when an override keyword matches.
const overrideScore = 8

// RealtimeAlert pulls the last few minutes of news in fast mode, screens
// unalerted articles and alerts on the breaking ones. Strong items become
// news signals for the trader.
func (r *Runner) RealtimeAlert(ctx context.Context) error {
	cfg := r.env.Config.Alerts
	if r.env.News != nil {
		if _, err := r.env.News.Ingest(ctx, news.Options{Fast: true, Lookback: cfg.Lookback}); err != nil {
			return err
		}
	}

	articles, err := r.env.Store.UnalertedNews(ctx, cfg.Lookback)
	if err != nil {
		return err
	}

	var alerted int
	for _, a := range articles {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Processed articles were already covered by a report.
		if a.Status == core.ArticleProcessed {
			continue
		}
		ok, err := r.screen(ctx, a)
		if err != nil {
			r.log.Warn("breaking check failed", zap.String("article", a.ID), zap.Error(err))
			continue
		}
		if ok {
			alerted++
		}
	}
	r.log.Info("realtime scan finished", zap.Int("candidates", len(articles)), zap.Int("alerted", alerted))
	return nil
}

// screen runs one article through the urgency filter and the classifier.
// It returns true when an alert went out.
func (r *Runner) screen(ctx context.Context, a store.Article) (bool, error) {
	cfg := r.env.Config.Alerts
	overrides := news.MatchKeywords(a.Title+" "+firstRunes(a.Content, 500), cfg.OverrideKeywords)
	urgent := len(news.MatchKeywords(a.Title, cfg.UrgencyWords)) > 0
	if !urgent && len(overrides) == 0 {
		return false, nil
	}

	b := r.env.Analyst.CheckBreakingNews(ctx, a.Title+"\n\n"+a.Content)
	if len(overrides) > 0 {
		b.IsBreaking = true
		if b.Score < overrideScore {
			b.Score = overrideScore
		}
		r.log.Info("override keyword forced breaking", zap.String("article", a.ID), zap.Strings("keywords", overrides))
	} else if !b.Available {
		return false, core.WrapError(core.ErrLLMFailed, fmt.Errorf("no classification for %s", a.ID))
	}
	if !b.IsBreaking {
		return false, nil
	}

	if !r.sendAlert(ctx, a, b) {
		// Left unalerted so the next tick retries.
		return false, core.WrapError(core.ErrNotifierFailed, fmt.Errorf("alert for %s not delivered", a.ID))
	}
	if cfg.LiveBlog {
		r.post(ctx, firstNonEmpty(b.Headline, a.Title), liveEntry(a, b))
	}

	if b.Score >= cfg.TradeScore {
		side := SideFromImpact(b.Impact)
		if side == "" {
			r.log.Info("breaking news without a clear direction, no signal", zap.String("article", a.ID), zap.String("impact", b.Impact))
		} else if r.env.Trader != nil {
			out, err := r.env.Trader.ProcessNewsSignal(ctx, r.symbol(), side, b.Score, firstNonEmpty(b.Headline, a.Title))
			if err != nil {
				r.log.Warn("news signal failed", zap.String("article", a.ID), zap.Error(err))
			}
			r.announce(ctx, out)
		}
	}

	if _, err := r.env.Store.MarkAlerted(ctx, a.ID); err != nil {
		r.log.Error("article not marked alerted", zap.String("article", a.ID), zap.Error(err))
	}
	return true, nil
}

func (r *Runner) sendAlert(ctx context.Context, a store.Article, b analyst.BreakingNews) bool {
	if r.env.Notifier == nil {
		return true
	}
	key := "alert:" + a.ID
	text := r.env.Formatter.BreakingAlert(a, b)
	var (
		sent bool
		errs map[string]error
	)
	if a.ImageURL != "" {
		sent, errs = r.env.Notifier.NotifyPhoto(ctx, key, a.ImageURL, notifier.Truncate(text, notifier.CaptionLimit))
	} else {
		sent, errs = r.env.Notifier.Notify(ctx, key, text)
	}
	r.logChannelErrors(key, errs)
	return sent || len(errs) == 0
}

func liveEntry(a store.Article, b analyst.BreakingNews) string {
	var sb strings.Builder
	if b.Summary != "" {
		sb.WriteString(b.Summary)
		sb.WriteString("\n\n")
	}
	if b.Impact != "" {
		fmt.Fprintf(&sb, "**Impact:** %s (%s, %.0f/10)\n\n", b.Impact, notifier.Tier(b.Score), b.Score)
	}
	fmt.Fprintf(&sb, "Source: [%s](%s)", a.Source, a.ID)
	return sb.String()
}

var (
	bullishWords = []string{"bullish", "positive", "higher", "rise", "rally", "gain", "support", "tăng"}
	bearishWords = []string{"bearish", "negative", "lower", "fall", "drop", "decline", "pressure", "giảm"}
)

// SideFromImpact reads a direction for gold from the classifier's impact
// text. An explicit bullish or bearish wins; otherwise the looser word
// lists decide, and a tie yields "".
func SideFromImpact(impact string) core.SignalType {
	text := strings.ToLower(impact)
	bull := strings.Contains(text, "bullish")
	bear := strings.Contains(text, "bearish")
	switch {
	case bull && !bear:
		return core.SignalBuy
	case bear && !bull:
		return core.SignalSell
	}
	up := len(news.MatchKeywords(text, bullishWords))
	down := len(news.MatchKeywords(text, bearishWords))
	switch {
	case up > down:
		return core.SignalBuy
	case down > up:
		return core.SignalSell
	}
	return ""
}

func firstRunes(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

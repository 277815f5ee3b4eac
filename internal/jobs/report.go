package jobs

import (
	"context"
	"fmt"
	"math"
	"path"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/core"
	"github.com/newthinker/aurum/internal/indicator"
	"github.com/newthinker/aurum/internal/news"
	"github.com/newthinker/aurum/internal/store"
)

// ReportArticleLimit caps the articles fed into one report.
const ReportArticleLimit = 30

// ScanNews runs a normal-mode ingest over every source.
func (r *Runner) ScanNews(ctx context.Context) error {
	if r.env.News == nil {
		return nil
	}
	added, err := r.env.News.Ingest(ctx, news.Options{})
	if err != nil {
		return err
	}
	r.log.Info("news scan finished", zap.Int("new_articles", len(added)))
	return nil
}

// ReportOptions adjusts one DailyReport run.
type ReportOptions struct {
	// SkipTrade stores the signal but does not call the trader.
	SkipTrade bool
}

// DailyReport analyses the unprocessed articles with the technical
// picture, stores and publishes the report, and hands any signal to the
// trader. Articles are marked processed only after the report is saved.
func (r *Runner) DailyReport(ctx context.Context) error {
	return r.dailyReport(ctx, ReportOptions{})
}

func (r *Runner) dailyReport(ctx context.Context, opts ReportOptions) error {
	sym := r.symbol()

	articles, err := r.env.Store.UnprocessedArticles(ctx, ReportArticleLimit)
	if err != nil {
		return err
	}

	ta, err := r.technicals(ctx)
	if err != nil {
		r.log.Warn("technical analysis unavailable, reporting on news only", zap.Error(err))
	}
	if len(articles) == 0 && err != nil {
		r.log.Info("nothing to report: no new articles and no market data")
		return nil
	}

	prior, err := r.env.Store.LatestReport(ctx)
	if err != nil {
		r.log.Warn("prior report unavailable", zap.Error(err))
	}

	analysis := r.env.Analyst.AnalyzeMarket(ctx, articles, ta, prior)
	if !analysis.Available {
		return core.WrapError(core.ErrLLMFailed, fmt.Errorf("market analysis unavailable, %d articles left for the next cycle", len(articles)))
	}

	at := r.now()
	body := analysis.Markdown()
	rep := store.Report{
		Headline:       analysis.Headline,
		Content:        body,
		SentimentScore: analysis.SentimentScore,
		Trend:          analysis.Trend,
		CreatedAt:      at,
	}
	if s := analysis.Signal; s != nil && s.OrderType.IsActionable() {
		rep.SignalType = s.OrderType
		rep.EntryPrice = s.EntryPrice
		rep.StopLoss = s.StopLoss
		rep.TakeProfit = s.TP1
	}
	id, err := r.env.Store.SaveReport(ctx, rep)
	if err != nil {
		return err
	}
	log := r.log.With(zap.Int64("report_id", id))
	log.Info("report saved",
		zap.String("headline", analysis.Headline),
		zap.String("trend", string(analysis.Trend)),
		zap.Float64("sentiment", analysis.SentimentScore),
		zap.Int("articles", len(articles)))

	r.notify(ctx, fmt.Sprintf("report:%d", id), r.env.Formatter.ReportDigest(analysis, ta.Price, at))
	r.post(ctx, analysis.Headline, body)
	r.archiveReport(ctx, id, rep)

	if rep.SignalType != "" {
		sigID, err := r.env.Store.SaveSignal(ctx, store.TradeSignal{
			Symbol:     sym,
			Type:       rep.SignalType,
			Source:     core.SourceAIReport,
			Score:      math.Abs(analysis.SentimentScore),
			EntryPrice: rep.EntryPrice,
			StopLoss:   rep.StopLoss,
			TakeProfit: rep.TakeProfit,
			Reason:     analysis.Headline,
		})
		if err != nil {
			log.Error("report signal not saved", zap.Error(err))
		} else {
			log.Info("report signal saved", zap.Int64("signal_id", sigID), zap.String("type", string(rep.SignalType)))
		}
	}

	if len(articles) > 0 {
		ids := make([]string, len(articles))
		for i, a := range articles {
			ids[i] = a.ID
		}
		if _, err := r.env.Store.MarkProcessed(ctx, ids...); err != nil {
			log.Error("articles not marked processed", zap.Error(err))
		}
	}

	if opts.SkipTrade || !r.tradingEnabled() {
		return nil
	}
	out, err := r.env.Trader.AnalyzeAndTrade(ctx, sym)
	if err != nil {
		return fmt.Errorf("trade after report %d: %w", id, err)
	}
	log.Info("trader decision", zap.String("action", string(out.Action)), zap.String("mode", out.Mode))
	r.announce(ctx, out)
	return nil
}

func (r *Runner) technicals(ctx context.Context) (indicator.Summary, error) {
	if r.env.Market == nil {
		return indicator.Summary{}, core.ErrNoData
	}
	tc := r.env.Config.Trader
	bars, err := r.env.Market.FetchCandles(ctx, r.symbol(), tc.ReportTimeframe, tc.ReportCandles)
	if err != nil {
		return indicator.Summary{}, err
	}
	return indicator.Analyze(bars)
}

// ReportPath is the archive key of a report: reports/YYYY/MM/DD/<id>.md.
func ReportPath(rep store.Report, id int64) string {
	return path.Join("reports", rep.CreatedAt.UTC().Format("2006/01/02"), fmt.Sprintf("%d.md", id))
}

func (r *Runner) archiveReport(ctx context.Context, id int64, rep store.Report) {
	if r.env.Archive == nil {
		return
	}
	key := ReportPath(rep, id)
	doc := fmt.Sprintf("# %s\n\n_%s UTC_\n\n%s\n", rep.Headline, core.FormatUTC(rep.CreatedAt), rep.Content)
	if err := r.env.Archive.Write(ctx, key, []byte(doc)); err != nil {
		r.log.Warn("report not archived", zap.String("path", key), zap.Error(err))
	}
}

package notifier

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/newthinker/aurum/internal/analyst"
	"github.com/newthinker/aurum/internal/store"
)

// CaptionLimit is the chat API's photo caption limit in characters.
const CaptionLimit = 1024

// Formatter renders outbound messages. It is the only place timestamps
// leave UTC.
type Formatter struct {
	Location *time.Location
}

// NewFormatter formats times in loc, UTC when nil.
func NewFormatter(loc *time.Location) Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return Formatter{Location: loc}
}

func (f Formatter) when(t time.Time) string {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02/01 15:04 MST")
}

// Tier labels an impact magnitude.
func Tier(score float64) string {
	switch s := math.Abs(score); {
	case s >= 8:
		return "CRITICAL"
	case s >= 5:
		return "STRONG"
	default:
		return "MEDIUM"
	}
}

func tierIcon(tier string) string {
	switch tier {
	case "CRITICAL":
		return "🚨"
	case "STRONG":
		return "🔴"
	default:
		return "🟡"
	}
}

// BreakingAlert renders a realtime alert for an article.
func (f Formatter) BreakingAlert(a store.Article, b analyst.BreakingNews) string {
	tier := Tier(b.Score)
	headline := b.Headline
	if headline == "" {
		headline = a.Title
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s <b>BREAKING | %s (%.0f/10)</b>\n\n", tierIcon(tier), tier, b.Score)
	fmt.Fprintf(&sb, "<b>%s</b>\n", esc(headline))
	if b.Summary != "" {
		fmt.Fprintf(&sb, "%s\n", esc(b.Summary))
	}
	if b.Impact != "" {
		fmt.Fprintf(&sb, "\n<i>Impact:</i> %s\n", esc(b.Impact))
	}
	fmt.Fprintf(&sb, "\n<i>%s | %s</i>", esc(a.Source), f.when(a.PublishedAt))
	if a.ID != "" {
		fmt.Fprintf(&sb, "\n<a href=\"%s\">Read more</a>", esc(a.ID))
	}
	return sb.String()
}

// ReportDigest renders the daily report summary.
func (f Formatter) ReportDigest(m analyst.MarketAnalysis, price float64, at time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 <b>XAU/USD | %s</b>\n", esc(m.Headline))
	fmt.Fprintf(&sb, "<i>%s</i>\n\n", f.when(at))
	if price > 0 {
		fmt.Fprintf(&sb, "Price: <code>%.2f</code>\n", price)
	}
	fmt.Fprintf(&sb, "Trend: <b>%s</b> | Sentiment: <b>%+.1f</b>\n\n", m.Trend, m.SentimentScore)
	for _, p := range m.BulletPoints {
		fmt.Fprintf(&sb, "• %s\n", esc(p))
	}
	if m.Conclusion != "" {
		fmt.Fprintf(&sb, "\n%s\n", esc(m.Conclusion))
	}
	if s := m.Signal; s != nil {
		fmt.Fprintf(&sb, "\n🎯 <b>%s</b> @ <code>%.2f</code> | SL <code>%.2f</code> | TP1 <code>%.2f</code> | TP2 <code>%.2f</code>",
			s.OrderType, s.EntryPrice, s.StopLoss, s.TP1, s.TP2)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// EventPreAlert announces an upcoming release.
func (f Formatter) EventPreAlert(e store.EconomicEvent, now time.Time) string {
	mins := int(math.Round(e.Timestamp.Sub(now).Minutes()))
	var sb strings.Builder
	fmt.Fprintf(&sb, "⏰ <b>%s %s</b> in %d min\n", esc(e.Currency), esc(e.Title), mins)
	fmt.Fprintf(&sb, "<i>%s</i>\n", f.when(e.Timestamp))
	fmt.Fprintf(&sb, "Forecast: <code>%s</code> | Previous: <code>%s</code>", dash(e.Forecast), dash(e.Previous))
	return sb.String()
}

// EventPostAlert reports a release with its interpretation.
func (f Formatter) EventPostAlert(e store.EconomicEvent, r analyst.ReleaseAnalysis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📢 <b>%s %s</b>\n", esc(e.Currency), esc(e.Title))
	fmt.Fprintf(&sb, "Actual: <b>%s</b> | Forecast: <code>%s</code> | Previous: <code>%s</code>\n",
		esc(e.Actual), dash(e.Forecast), dash(e.Previous))
	if r.Available {
		fmt.Fprintf(&sb, "\nGold: <b>%s</b> (%+.1f)\n", r.Trend, r.SentimentScore)
		if r.Summary != "" {
			fmt.Fprintf(&sb, "%s\n", esc(r.Summary))
		}
	}
	fmt.Fprintf(&sb, "<i>%s</i>", f.when(e.Timestamp))
	return sb.String()
}

// Execution describes a placed order for TradeExecuted.
type Execution struct {
	Mode   string
	Symbol string
	Type   string
	Volume float64
	Price  float64
	SL     float64
	TP     float64
	Ticket string
	At     time.Time
}

// TradeExecuted confirms an order.
func (f Formatter) TradeExecuted(x Execution) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ <b>%s %s</b> %.2f lot | %s\n", esc(x.Type), esc(x.Symbol), x.Volume, esc(x.Mode))
	if x.Price > 0 {
		fmt.Fprintf(&sb, "Price: <code>%.2f</code>\n", x.Price)
	}
	if x.SL > 0 || x.TP > 0 {
		fmt.Fprintf(&sb, "SL: <code>%.2f</code> | TP: <code>%.2f</code>\n", x.SL, x.TP)
	}
	fmt.Fprintf(&sb, "Ticket: <code>%s</code> | <i>%s</i>", esc(x.Ticket), f.when(x.At))
	return sb.String()
}

// Truncate cuts s to at most limit runes, marking the cut with an
// ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	return string(r[:limit-1]) + "…"
}

func esc(s string) string { return html.EscapeString(s) }

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return esc(s)
}

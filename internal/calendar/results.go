package calendar

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/core"
)

// Result is one released value read from the calendar page.
type Result struct {
	Title    string
	Currency string
	Time     time.Time // UTC
	Actual   string
}

// ScrapeActuals reads released values from the calendar page and writes
// them onto matching events that have no actual yet.
func (in *Ingestor) ScrapeActuals(ctx context.Context) (seen, updated int, err error) {
	resp, err := in.fetcher.Fetch(ctx, in.cfg.PageURL, in.timeout)
	if err != nil {
		return 0, 0, err
	}
	results, err := ParseResults(resp.Body, in.site, in.now())
	if err != nil {
		return 0, 0, err
	}

	for _, r := range results {
		changed, err := in.store.UpdateEventActual(ctx, r.Title, r.Currency, r.Time, r.Actual)
		if err != nil {
			return len(results), updated, err
		}
		if changed {
			updated++
			in.logger.Info("event actual recorded",
				zap.String("title", r.Title),
				zap.String("currency", r.Currency),
				zap.String("actual", r.Actual))
		}
	}
	return len(results), updated, nil
}

var monthDay = regexp.MustCompile(`(?i)(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s*(\d{1,2})`)

// ParseResults walks the rows of the calendar table in document order.
// Date cells and day-breaker rows set the current day; an empty time cell
// inherits the last time seen that day. Times are read in loc and the
// year is taken from now, adjusted across a year boundary. Only rows with
// a released actual are returned.
func ParseResults(page []byte, loc *time.Location, now time.Time) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("parsing calendar page: %w", err))
	}
	table := doc.Find("table.calendar__table")
	if table.Length() == 0 {
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("calendar table not found"))
	}

	localNow := now.In(loc)
	var (
		day     time.Time // midnight in loc, zero until the first date
		clock   time.Duration
		results []Result
	)
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		dateText := cellText(row.Find("td.calendar__date"))
		if dateText == "" && row.HasClass("calendar__row--day-breaker") {
			dateText = cellText(row)
		}
		if dateText != "" {
			if d, ok := parseDay(dateText, localNow, loc); ok {
				day = d
				clock = 0
			}
		}

		if t := cellText(row.Find("td.calendar__time")); t != "" {
			if c, ok := parseClock(t); ok {
				clock = c
			}
		}

		title := cellText(row.Find(".calendar__event-title"))
		actual := cellText(row.Find("td.calendar__actual"))
		if title == "" || actual == "" || day.IsZero() {
			return
		}
		results = append(results, Result{
			Title:    title,
			Currency: strings.ToUpper(cellText(row.Find("td.calendar__currency"))),
			Time:     day.Add(clock).UTC(),
			Actual:   actual,
		})
	})
	return results, nil
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.First().Text()), " ")
}

// parseDay reads "Mon Mar 10", "MonMar 10" or "Mar 10".
func parseDay(s string, now time.Time, loc *time.Location) (time.Time, bool) {
	m := monthDay.FindAllStringSubmatch(s, -1)
	if len(m) == 0 {
		return time.Time{}, false
	}
	last := m[len(m)-1]
	month, err := time.Parse("Jan", strings.ToUpper(last[1][:1])+strings.ToLower(last[1][1:3]))
	if err != nil {
		return time.Time{}, false
	}
	dom, err := strconv.Atoi(last[2])
	if err != nil || dom < 1 || dom > 31 {
		return time.Time{}, false
	}

	year := now.Year()
	switch diff := int(month.Month()) - int(now.Month()); {
	case diff > 6:
		year--
	case diff < -6:
		year++
	}
	return time.Date(year, month.Month(), dom, 0, 0, 0, 0, loc), true
}

// parseClock reads "8:30am" style times as an offset from midnight.
// "All Day", "Tentative" and similar labels mean midnight.
func parseClock(s string) (time.Duration, bool) {
	s = strings.ToLower(strings.ReplaceAll(s, " ", ""))
	t, err := time.Parse("3:04pm", s)
	if err != nil {
		switch {
		case strings.Contains(s, "allday"), strings.Contains(s, "tentative"), strings.HasPrefix(s, "day"):
			return 0, true
		}
		return 0, false
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, true
}

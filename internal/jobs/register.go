package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/aurum/internal/config"
	"github.com/newthinker/aurum/internal/scheduler"
)

// Job family names.
const (
	JobScanNews      = "scan_news"
	JobDailyReport   = "daily_report"
	JobRealtimeAlert = "realtime_alert"
	JobEconomic      = "economic_worker"
	JobTradeMonitor  = "trade_monitor"
)

// Register binds the five job families to s. Scans and reports run on
// weekdays only unless cfg.Force is set; each report fires ReportOffset
// after its scan.
func Register(s *scheduler.Scheduler, r *Runner, cfg config.ScheduleConfig) error {
	scans, err := scheduler.DailyAt(cfg.ScanTimes...)
	if err != nil {
		return err
	}
	reportTimes, err := offsetTimes(cfg.ScanTimes, cfg.ReportOffset)
	if err != nil {
		return err
	}
	reports, err := scheduler.DailyAt(reportTimes...)
	if err != nil {
		return err
	}

	jobs := []scheduler.Job{
		{Name: JobScanNews, Schedule: scheduler.WeekdaysOnly(scans, cfg.Force), Run: r.ScanNews, Interval: cfg.ReportOffset},
		{Name: JobDailyReport, Schedule: scheduler.WeekdaysOnly(reports, cfg.Force), Run: r.DailyReport, Interval: 30 * time.Minute},
		{Name: JobRealtimeAlert, Schedule: scheduler.Every(cfg.RealtimeInterval), Run: r.RealtimeAlert, Interval: cfg.RealtimeInterval},
		{Name: JobEconomic, Schedule: scheduler.Every(cfg.EconomicInterval), Run: r.EconomicWorker, Interval: cfg.EconomicInterval},
		{Name: JobTradeMonitor, Schedule: scheduler.Every(cfg.MonitorInterval), Run: r.TradeMonitor, Interval: cfg.MonitorInterval},
	}
	for _, j := range jobs {
		if err := s.Add(j); err != nil {
			return err
		}
	}
	return nil
}

func offsetTimes(times []string, offset time.Duration) ([]string, error) {
	out := make([]string, 0, len(times))
	for _, hm := range times {
		t, err := time.Parse("15:04", hm)
		if err != nil {
			return nil, fmt.Errorf("scan time %q: %w", hm, err)
		}
		out = append(out, t.Add(offset).Format("15:04"))
	}
	return out, nil
}

// RunOnce is the manual path, regardless of the day of the week: scan,
// report, economic worker, trade monitor. SkipTrade stops after the
// report, since the later steps can place orders.
func (r *Runner) RunOnce(ctx context.Context, opts ReportOptions) error {
	var errs []error
	if err := r.ScanNews(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scan: %w", err))
	}
	if err := r.dailyReport(ctx, opts); err != nil {
		errs = append(errs, fmt.Errorf("report: %w", err))
	}
	if opts.SkipTrade {
		return errors.Join(errs...)
	}
	if err := r.EconomicWorker(ctx); err != nil {
		errs = append(errs, fmt.Errorf("economic: %w", err))
	}
	if err := r.TradeMonitor(ctx); err != nil {
		errs = append(errs, fmt.Errorf("monitor: %w", err))
	}
	return errors.Join(errs...)
}

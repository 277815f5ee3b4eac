package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/aurum/internal/core"
)

// Schedule decides whether a job is due at a minute. t is wall-clock
// time in the scheduler's location, truncated to the minute.
type Schedule interface {
	Due(t time.Time) bool
}

// ScheduleFunc adapts a function to Schedule.
type ScheduleFunc func(t time.Time) bool

// Due implements Schedule.
func (f ScheduleFunc) Due(t time.Time) bool { return f(t) }

// Every fires on minutes of the day divisible by d, so Every(15*time.Minute)
// runs at :00, :15, :30 and :45. Durations below a minute fire every minute.
func Every(d time.Duration) Schedule {
	step := int(d / time.Minute)
	if step < 1 {
		step = 1
	}
	return ScheduleFunc(func(t time.Time) bool {
		return (t.Hour()*60+t.Minute())%step == 0
	})
}

// DailyAt fires at each HH:MM.
func DailyAt(times ...string) (Schedule, error) {
	at := make(map[int]bool, len(times))
	for _, hm := range times {
		parsed, err := time.Parse("15:04", strings.TrimSpace(hm))
		if err != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("schedule time %q must be HH:MM", hm))
		}
		at[parsed.Hour()*60+parsed.Minute()] = true
	}
	return ScheduleFunc(func(t time.Time) bool {
		return at[t.Hour()*60+t.Minute()]
	}), nil
}

// MustDailyAt is DailyAt for literal times.
func MustDailyAt(times ...string) Schedule {
	s, err := DailyAt(times...)
	if err != nil {
		panic(err)
	}
	return s
}

// WeekdaysOnly suppresses s on Saturday and Sunday unless force is set.
func WeekdaysOnly(s Schedule, force bool) Schedule {
	if force {
		return s
	}
	return ScheduleFunc(func(t time.Time) bool {
		if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
		return s.Due(t)
	})
}

package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes the next execution time from either an interval or a
// cron expression (§ "universal schedule formats" supplement, grounded on
// original_source's scheduler_service.rs which accepted both forms — here
// done with a real cron parser rather than the source's hand-rolled
// date arithmetic).
type Schedule interface {
	Next(from time.Time) time.Time
}

// IntervalSchedule fires every Interval, matching
// StrategyConfig.ExecutionIntervalMinutes (§4.1.g reschedule policy).
type IntervalSchedule struct {
	Interval time.Duration
}

func (s IntervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.Interval)
}

// CronSchedule fires at the next match of a standard 5-field cron
// expression.
type CronSchedule struct {
	schedule cron.Schedule
	raw      string
}

func (s CronSchedule) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

func (s CronSchedule) String() string { return s.raw }

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule accepts either "@every <duration>" (e.g. "@every 15m") or a
// standard 5-field cron expression ("*/15 * * * *").
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if strings.HasPrefix(spec, "@every ") {
		d, err := time.ParseDuration(strings.TrimPrefix(spec, "@every "))
		if err != nil {
			return nil, fmt.Errorf("parse interval schedule %q: %w", spec, err)
		}
		return IntervalSchedule{Interval: d}, nil
	}
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron schedule %q: %w", spec, err)
	}
	return CronSchedule{schedule: sched, raw: spec}, nil
}

// IntervalMinutes turns an execution_interval_minutes config field into an
// IntervalSchedule of that many minutes, matching StrategyConfig's declared
// cadence.
func IntervalMinutes(minutes int) Schedule {
	return IntervalSchedule{Interval: time.Duration(minutes) * time.Minute}
}

// ParseMinutesField is a defensive helper for config loaders that accept a
// plain integer string for execution_interval_minutes.
func ParseMinutesField(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse execution_interval_minutes %q: %w", s, err)
	}
	return n, nil
}

package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oakline/schedcore/pkg/core"
)

// Schedule defines when a job should run next.
type Schedule interface {
	Next(from time.Time) time.Time
}

// everySchedule runs at fixed intervals.
type everySchedule struct {
	interval time.Duration
}

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return &everySchedule{interval: d}
}

func (s *everySchedule) Next(from time.Time) time.Time {
	return from.Add(s.interval)
}

// dailySchedule runs at a specific time each day.
type dailySchedule struct {
	hour   int
	minute int
	loc    *time.Location
}

// Daily creates a schedule that runs at a specific time each day.
func Daily(hour, minute int) Schedule {
	return &dailySchedule{hour: hour, minute: minute, loc: time.UTC}
}

func (s *dailySchedule) Next(from time.Time) time.Time {
	from = from.In(s.loc)
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// weeklySchedule runs at a specific day and time each week.
type weeklySchedule struct {
	day    time.Weekday
	hour   int
	minute int
	loc    *time.Location
}

// Weekly creates a schedule that runs at a specific day and time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return &weeklySchedule{day: day, hour: hour, minute: minute, loc: time.UTC}
}

func (s *weeklySchedule) Next(from time.Time) time.Time {
	from = from.In(s.loc)

	daysUntil := int(s.day - from.Weekday())
	if daysUntil < 0 {
		daysUntil += 7
	}

	next := time.Date(from.Year(), from.Month(), from.Day()+daysUntil, s.hour, s.minute, 0, 0, s.loc)
	if !next.After(from) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// cronSchedule wraps a cron expression.
type cronSchedule struct {
	schedule cron.Schedule
	loc      *time.Location
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Cron creates a UTC schedule from a standard 5-field cron expression.
func Cron(expr string) (Schedule, error) {
	return CronIn(expr, time.UTC)
}

// CronIn creates a schedule from a cron expression evaluated in the given
// location.
func CronIn(expr string, loc *time.Location) (Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidSchedule, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &cronSchedule{schedule: sched, loc: loc}, nil
}

func (s *cronSchedule) Next(from time.Time) time.Time {
	return s.schedule.Next(from.In(s.loc))
}

// ForJob resolves a job's schedule descriptor. Once jobs have no next
// occurrence, so ForJob returns (nil, nil) for them; cron jobs yield a
// timezone-aware cron schedule.
func ForJob(job *core.Job) (Schedule, error) {
	switch job.ScheduleType {
	case core.ScheduleOnce, "":
		return nil, nil
	case core.ScheduleCron:
		if job.CronExpr == "" {
			return nil, fmt.Errorf("%w: cron job %s has no expression", core.ErrInvalidSchedule, job.ID)
		}
		loc := time.UTC
		if job.Timezone != "" {
			var err error
			loc, err = time.LoadLocation(job.Timezone)
			if err != nil {
				return nil, fmt.Errorf("%w: timezone %q: %v", core.ErrInvalidSchedule, job.Timezone, err)
			}
		}
		return CronIn(job.CronExpr, loc)
	default:
		return nil, fmt.Errorf("%w: schedule type %q", core.ErrInvalidSchedule, job.ScheduleType)
	}
}

// NextRun computes a job's next occurrence after the given time, or nil
// when the job has none (once jobs).
func NextRun(job *core.Job, after time.Time) (*time.Time, error) {
	sched, err := ForJob(job)
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, nil
	}
	next := sched.Next(after)
	return &next, nil
}

package automation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the five-field form produced by CronSpec.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronSpec renders the schedule as a standard cron expression, for
// example "0 8 * * 1,3,5". ISO Sunday (7) becomes cron's 0.
func (s Schedule) CronSpec() (string, error) {
	if !s.Type.Valid() {
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidSchedule, s.Type)
	}
	hour, minute, err := ParseClock(s.Time)
	if err != nil {
		return "", err
	}

	dow := "*"
	if s.Type == ScheduleWeekly {
		if len(s.Days) == 0 {
			return "", fmt.Errorf("%w: weekly schedule needs at least one day", ErrInvalidSchedule)
		}
		parts := make([]string, 0, len(s.Days))
		for _, d := range s.Days {
			if d < 1 || d > 7 {
				return "", fmt.Errorf("%w: day %d outside 1-7", ErrInvalidSchedule, d)
			}
			parts = append(parts, strconv.Itoa(d%7))
		}
		dow = strings.Join(parts, ",")
	}
	return fmt.Sprintf("%d %d * * %s", minute, hour, dow), nil
}

// compiledSchedule answers "is this minute an occurrence" for one rule.
type compiledSchedule struct {
	spec cron.Schedule
}

func compileSchedule(s Schedule) (compiledSchedule, error) {
	expr, err := s.CronSpec()
	if err != nil {
		return compiledSchedule{}, err
	}
	spec, err := cronParser.Parse(expr)
	if err != nil {
		return compiledSchedule{}, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}
	return compiledSchedule{spec: spec}, nil
}

// dueAt reports whether the minute containing t is an occurrence. Seconds
// are ignored; t's own location is used.
func (c compiledSchedule) dueAt(t time.Time) bool {
	m := t.Truncate(time.Minute)
	return c.spec.Next(m.Add(-time.Second)).Equal(m)
}

// IsDue reports whether s has an occurrence in the minute containing t.
// Invalid schedules are never due.
func (s Schedule) IsDue(t time.Time) bool {
	c, err := compileSchedule(s)
	if err != nil {
		return false
	}
	return c.dueAt(t)
}

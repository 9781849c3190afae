package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard five-field expressions and the @yearly,
// @monthly, @weekly, @daily and @hourly descriptors.
//
//   - "30 18 * * 1-6" - 18:30 Monday to Saturday
//   - "0 */6 * * *"   - every six hours
//   - "0 7 1 * *"     - 07:00 on the first of the month
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronSchedule is a parsed cron expression evaluated in a fixed location.
type CronSchedule struct {
	expr string
	spec cron.Schedule
	loc  *time.Location
}

// ParseCron parses expr and evaluates it in loc. A nil loc means the
// location of the time passed to Next.
func ParseCron(expr string, loc *time.Location) (*CronSchedule, error) {
	expr = strings.Join(strings.Fields(expr), " ")
	spec, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if s, ok := spec.(*cron.SpecSchedule); ok && loc != nil {
		s.Location = loc
	}
	return &CronSchedule{expr: expr, spec: spec, loc: loc}, nil
}

// Next returns the first activation strictly after t, or the zero time when
// the expression can never fire (for example "0 0 31 2 *").
func (c *CronSchedule) Next(t time.Time) time.Time {
	if c.loc == nil {
		// SpecSchedule's default location is time.Local.
		if s, ok := c.spec.(*cron.SpecSchedule); ok {
			clone := *s
			clone.Location = t.Location()
			return clone.Next(t)
		}
	}
	return c.spec.Next(t)
}

func (c *CronSchedule) String() string {
	if c.loc == nil {
		return c.expr
	}
	return c.expr + " (" + c.loc.String() + ")"
}

// ParseSchedule accepts either "@every <duration>" (at least one second) or a
// cron expression evaluated in loc.
func ParseSchedule(expr string, loc *time.Location) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if rest, ok := strings.CutPrefix(expr, "@every"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", expr, err)
		}
		if d < time.Second {
			return nil, fmt.Errorf("interval %s is shorter than one second", d)
		}
		return NewIntervalSchedule(d), nil
	}
	return ParseCron(expr, loc)
}

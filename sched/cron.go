// Package sched runs Vigil's job scheduler: a scanner loop that discovers
// trigger definitions and one cron-paced evaluation loop per running job.
package sched

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vigilhq/vigil/errors"
)

// cronParser accepts the 6-field cron grammar with seconds precision,
// plus descriptors like @hourly.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule validates a trigger's cron expression
func ParseSchedule(schedule string) (cron.Schedule, error) {
	parsed, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedSchedule, "%q: %v", schedule, err)
	}
	return parsed, nil
}

// NextFireDelay computes how long to wait from now until the schedule's
// next fire time. The next fire is strictly after now, never equal.
func NextFireDelay(schedule string, now time.Time) (time.Duration, error) {
	parsed, err := ParseSchedule(schedule)
	if err != nil {
		return 0, err
	}

	next := parsed.Next(now)
	if next.IsZero() {
		return 0, errors.Wrapf(errors.ErrMalformedSchedule, "%q never fires", schedule)
	}
	return next.Sub(now), nil
}

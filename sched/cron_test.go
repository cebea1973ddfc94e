package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilhq/vigil/errors"
)

func TestNextFireDelay_SecondsPrecision(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	delay, err := NextFireDelay("*/5 * * * * *", now)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, delay)
}

func TestNextFireDelay_StrictlyAfterNow(t *testing.T) {
	// Now coincides exactly with a fire time; the next fire must still be
	// in the future, never zero.
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	delay, err := NextFireDelay("0 * * * * *", now)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, delay)
}

func TestNextFireDelay_EverySecond(t *testing.T) {
	delay, err := NextFireDelay("* * * * * *", time.Now())
	require.NoError(t, err)
	assert.Greater(t, delay, time.Duration(0))
	assert.LessOrEqual(t, delay, time.Second)
}

func TestNextFireDelay_Descriptor(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	delay, err := NextFireDelay("@hourly", now)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, delay)
}

func TestNextFireDelay_Malformed(t *testing.T) {
	for _, schedule := range []string{"", "not a cron", "* * * * *  extra junk", "61 * * * * *"} {
		_, err := NextFireDelay(schedule, time.Now())
		require.Error(t, err, "schedule %q", schedule)
		assert.True(t, errors.Is(err, errors.ErrMalformedSchedule), "schedule %q", schedule)
	}
}

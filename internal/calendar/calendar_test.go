package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateOf_DropsTimeOfDay(t *testing.T) {
	late := time.Date(2026, time.March, 3, 23, 59, 0, 0, time.UTC)
	early := time.Date(2026, time.March, 3, 0, 1, 0, 0, time.UTC)

	assert.True(t, DateOf(late).Equal(DateOf(early)))
	assert.Equal(t, "2026-03-03", DateOf(late).String())
}

func TestDaysBetween(t *testing.T) {
	start := NewDate(2026, time.February, 20)

	assert.Equal(t, 14, DaysBetween(start, start.AddDays(14)))
	assert.Equal(t, -3, DaysBetween(start, start.AddDays(-3)))
	assert.Equal(t, 0, DaysBetween(start, start))
	// crosses the end of February
	assert.Equal(t, "2026-03-06", start.AddDays(14).String())
}

func TestManualClock_Advance(t *testing.T) {
	c := NewManualClock(time.Date(2026, time.January, 1, 9, 0, 0, 0, time.UTC))
	before := Today(c)

	c.AdvanceDays(17)

	assert.Equal(t, 17, DaysBetween(before, Today(c)))
	assert.True(t, before.Before(Today(c)))
	assert.True(t, before.BeforeOrEqual(before))
}

func TestZeroDate(t *testing.T) {
	var d Date
	assert.True(t, d.IsZero())
	assert.Empty(t, d.String())
}

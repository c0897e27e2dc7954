package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2025, 3, 31, 23, 30, 0, 0, time.UTC)
	c := NewFakeClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(time.Hour)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 30, 0, 0, time.UTC), c.Now())
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), Today(c))
}

func TestDateOfNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	in := time.Date(2025, 6, 10, 22, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC), DateOf(in))
}

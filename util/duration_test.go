package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	assert := assert.New(t)

	good := []struct {
		s   string
		out time.Duration
	}{
		{s: "30s", out: 30 * time.Second},
		{s: "10m", out: 10 * time.Minute},
		{s: "1h30m", out: 90 * time.Minute},
		{s: "2 days", out: 2 * Day},
		{s: "1w 2d", out: Week + 2*Day},
		{s: " 1 Hour, 5 MINUTES ", out: time.Hour + 5*time.Minute},
	}
	for _, fix := range good {
		d, err := ParseDuration(fix.s)
		assert.NoError(err, fix.s)
		assert.Equal(fix.out, d, fix.s)
	}

	bad := []string{"", "   ", "10", "m", "5 fortnights", "0s", "1h-5m"}
	for _, s := range bad {
		_, err := ParseDuration(s)
		assert.Error(err, s)
	}
}

func TestFormatDuration(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("0 seconds", FormatDuration(0))
	assert.Equal("1 minute", FormatDuration(time.Minute))
	assert.Equal("10 minutes", FormatDuration(10*time.Minute))
	assert.Equal("1 hour and 30 minutes", FormatDuration(90*time.Minute))
	assert.Equal("1 week, 1 day, and 2 seconds", FormatDuration(Week+Day+2*time.Second))
}

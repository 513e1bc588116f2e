package countstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemCountStoreViolations(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	c, err := cs.GetCount(ctx, "violation", "caps", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.Increment(ctx, "violation", "caps"))
	assert.NoError(cs.Increment(ctx, "violation", "caps"))
	assert.NoError(cs.Increment(ctx, "violation", "spam"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCount(ctx, "violation", "caps", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}

	// offending users per guild
	assert.NoError(cs.IncrementDistinct(ctx, "offenders", "g1", "u1"))
	assert.NoError(cs.IncrementDistinct(ctx, "offenders", "g1", "u1"))
	assert.NoError(cs.IncrementDistinct(ctx, "offenders", "g1", "u2"))
	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCountDistinct(ctx, "offenders", "g1", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}
	c, err = cs.GetCountDistinct(ctx, "offenders", "g2", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
}

// run with -race
func TestMemCountStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_ = cs.Increment(ctx, "violation", "spam")
				_ = cs.IncrementDistinct(ctx, "offenders", "g1", "u1")
				_, _ = cs.GetCount(ctx, "violation", "spam", PeriodHour)
			}
		}()
	}
	wg.Wait()

	c, err := cs.GetCount(ctx, "violation", "spam", PeriodTotal)
	assert.NoError(err)
	assert.Equal(200, c)
	c, err = cs.GetCountDistinct(ctx, "offenders", "g1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)
}

func TestBucketKey(t *testing.T) {
	assert := assert.New(t)
	at := time.Date(2024, 3, 9, 17, 45, 0, 0, time.FixedZone("X", 3600))

	assert.Equal("violation-guild/g1", bucketKey("violation-guild", "g1", PeriodTotal, at))
	assert.Equal("violation-guild/g1/2024-03-09", bucketKey("violation-guild", "g1", PeriodDay, at))
	// buckets are in UTC
	assert.Equal("violation-guild/g1/2024-03-09T16", bucketKey("violation-guild", "g1", PeriodHour, at))
	assert.Equal("violation-guild/g1", bucketKey("violation-guild", "g1", "fortnight", at))
}

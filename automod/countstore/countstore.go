package countstore

import (
	"context"
	"time"
)

const (
	PeriodTotal = "total"
	PeriodDay   = "day"
	PeriodHour  = "hour"
)

// Counters of automod activity, bucketed by period. The engine increments one per violation, keyed by kind and by guild/user, and the admin API reads them back.
type CountStore interface {
	GetCount(ctx context.Context, name, val, period string) (int, error)
	Increment(ctx context.Context, name, val string) error
	GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error)
	IncrementDistinct(ctx context.Context, name, bucket, val string) error
}

// Every increment lands in one bucket per period. Retention is how long a backing store needs to keep a bucket around; zero means forever.
type periodSpec struct {
	name      string
	retention time.Duration
}

var periods = []periodSpec{
	{name: PeriodTotal},
	{name: PeriodDay, retention: 48 * time.Hour},
	{name: PeriodHour, retention: 2 * time.Hour},
}

// Key for the bucket of (name, val) covering the given instant. Unknown periods are treated as total.
func bucketKey(name, val, period string, now time.Time) string {
	now = now.UTC()
	key := name + "/" + val
	switch period {
	case PeriodDay:
		key += "/" + now.Format(time.DateOnly)
	case PeriodHour:
		key += "/" + now.Format("2006-01-02T15")
	}
	return key
}

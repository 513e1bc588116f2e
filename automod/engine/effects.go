package engine

import (
	"time"

	"github.com/guildwarden/warden/modstore"
)

var (
	// actioned-message markers are kept in the cache under this name
	ActionedCacheName = "actioned"

	// content snapshots in violation records are capped at this many characters
	ViolationContentLength = 1000
)

type CounterRef struct {
	Name   string
	Val    string
	Period *string
}

type CounterDistinctRef struct {
	Name   string
	Bucket string
	Val    string
}

// A detected rule violation and the punishment configured for it.
type Violation struct {
	Kind       modstore.ViolationKind
	Punishment string
	// zero means the punishment default
	Duration time.Duration
	Reason   string
}

// Mutable container for all the possible side-effects from rule execution. These are collected while rules run and persisted in bulk at the end.
type Effects struct {
	// List of counters which should be incremented as part of processing this event.
	CounterIncrements []CounterRef
	// Similar to "CounterIncrements", but for "distinct" style counters
	CounterDistinctIncrements []CounterDistinctRef
	// The message should be removed from the channel.
	DeleteMessage bool
	// Violations to record and punish, in rule order.
	Violations []Violation
}

// Enqueues the named counter to be incremented at the end of all rule processing. Will automatically increment for all time periods.
func (e *Effects) Increment(name, val string) {
	e.CounterIncrements = append(e.CounterIncrements, CounterRef{Name: name, Val: val})
}

func (e *Effects) IncrementDistinct(name, bucket, val string) {
	e.CounterDistinctIncrements = append(e.CounterDistinctIncrements, CounterDistinctRef{Name: name, Bucket: bucket, Val: val})
}

func (e *Effects) AddViolation(v Violation) {
	e.Violations = append(e.Violations, v)
}

// Package system provides the wall clock used for feed and fetch-run timestamps.
package system

import "time"

// Clock implements feeds.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC, truncated to the microsecond precision
// of Postgres timestamptz columns so stored and in-memory values compare equal.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

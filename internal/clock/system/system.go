// Package system provides the wall clock used outside of tests.
package system

import "time"

// Clock implements crawler.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to microseconds, the precision
// the SQL backends persist.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

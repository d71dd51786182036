// Package clock abstracts the ledger's notion of "now".
//
// Settlement timestamps have one-second resolution, the same as the block
// times recorded by the external sequencer, so every clock truncates to the
// second.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

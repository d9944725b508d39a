package engine

import "time"

// Clock supplies the wall time stamped on new records and used to expire
// drain leases.
//
// Record timestamps are provenance only; queue order comes from the store's
// id sequence, never from this clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

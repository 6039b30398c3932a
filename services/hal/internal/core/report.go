package core

import (
	"time"

	"robohal-go/types"
)

// Report projects a snapshot into its published form. It reads nothing
// but the snapshot.
func (s Snapshot[R]) Report(device string, id *uint8, addr uint16, now time.Time) types.Report {
	return types.Report{
		Device:  device,
		ID:      id,
		Addr:    addr,
		State:   s.State,
		Fresh:   s.Fresh,
		Reading: s.Reading,
		Recovery: types.Recovery{
			RetryCount:  s.Backoff.RetryCount,
			Interval:    s.Backoff.Interval,
			LastAttempt: s.Backoff.LastAttempt,
		},
		TS: now.UnixMilli(),
	}
}

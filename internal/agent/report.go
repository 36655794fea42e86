package agent

import (
	"time"

	"sysward/internal/diagnose"
	"sysward/internal/heal"
	"sysward/internal/telemetry"
)

// CycleReport is the per-cycle document broadcast to websocket clients.
type CycleReport struct {
	Cycle       uint64                `json:"cycle"`
	StartedAt   time.Time             `json:"started_at"`
	DurationMS  int64                 `json:"duration_ms"`
	Snapshot    *telemetry.Snapshot   `json:"snapshot"`
	Diagnostics *diagnose.Diagnostics `json:"diagnostics"`
	Actions     []heal.Action         `json:"actions,omitempty"`
	Insight     string                `json:"insight,omitempty"`
}

// actionRingSize bounds the healing action history kept for the API.
const actionRingSize = 64

// actionRing is a fixed-capacity FIFO of recent healing actions.
type actionRing struct {
	buf  [actionRingSize]heal.Action
	next int
	full bool
}

func (r *actionRing) add(actions []heal.Action) {
	for _, a := range actions {
		r.buf[r.next] = a
		r.next = (r.next + 1) % actionRingSize
		if r.next == 0 {
			r.full = true
		}
	}
}

// recent returns the stored actions oldest-first.
func (r *actionRing) recent() []heal.Action {
	if !r.full {
		out := make([]heal.Action, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]heal.Action, 0, actionRingSize)
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

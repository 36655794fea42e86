package heal

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	log "github.com/sirupsen/logrus"

	"sysward/internal/execx"
)

// mandbSampleWindow is the CPU sampling window used for the load gate.
const mandbSampleWindow = 500 * time.Millisecond

// cpuPercenter matches cpu.PercentWithContext; swappable in tests.
type cpuPercenter func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)

// Maintenance runs opportunistic housekeeping tasks that are gated on the
// host being quiet, as opposed to healing actions triggered by problems.
type Maintenance struct {
	cpuGate    float64
	runner     CommandRunner
	cpuPercent cpuPercenter
}

// NewMaintenance builds the housekeeping runner. cpuGate is the busy-CPU
// percentage above which tasks are deferred to a later cycle.
func NewMaintenance(cpuGate float64, runner CommandRunner) *Maintenance {
	return &Maintenance{
		cpuGate:    cpuGate,
		runner:     runner,
		cpuPercent: cpu.PercentWithContext,
	}
}

// RefreshManDB rebuilds the man page index if the host is idle enough.
// Returns true when the rebuild ran and succeeded; callers use that to
// reset their interval clock.
func (m *Maintenance) RefreshManDB(ctx context.Context) bool {
	usage, err := m.cpuPercent(ctx, mandbSampleWindow, false)
	if err != nil || len(usage) == 0 {
		log.Warnf("skipping mandb refresh, CPU sample failed: %v", err)
		return false
	}
	if usage[0] >= m.cpuGate {
		log.Infof("deferring mandb refresh, CPU at %.1f%% (gate %.1f%%)", usage[0], m.cpuGate)
		return false
	}

	log.Info("refreshing man page index")
	res := m.runner.Run(ctx, []string{"mandb", "-q"}, execx.Options{
		Sudo:    true,
		Timeout: 5 * time.Minute,
	})
	if !res.OK {
		log.Warnf("mandb refresh failed: %s", res.Output)
		return false
	}
	log.Info("man page index refreshed")
	return true
}

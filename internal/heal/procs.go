package heal

import (
	"context"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcInfo is the slice of process state the CPU mitigation needs to rank and
// filter candidates.
type ProcInfo struct {
	PID        int32
	Name       string
	CPUPercent float64
	Username   string
	// CreateTime is milliseconds since the epoch, as gopsutil reports it.
	CreateTime int64
}

// ProcessLister enumerates running processes. Swappable so orchestrator tests
// can supply fixed process tables.
type ProcessLister func(ctx context.Context) ([]ProcInfo, error)

// ZombieLister enumerates zombie process ids.
type ZombieLister func(ctx context.Context) ([]int32, error)

func listProcesses(ctx context.Context) ([]ProcInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ProcInfo, 0, len(procs))
	for _, p := range procs {
		info := ProcInfo{PID: p.Pid}
		// Processes can exit mid-scan; skip anything we can no longer read.
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		info.Name = name
		if pct, err := p.CPUPercentWithContext(ctx); err == nil {
			info.CPUPercent = pct
		}
		if user, err := p.UsernameWithContext(ctx); err == nil {
			info.Username = user
		}
		if created, err := p.CreateTimeWithContext(ctx); err == nil {
			info.CreateTime = created
		}
		out = append(out, info)
	}
	return out, nil
}

func listZombies(ctx context.Context) ([]int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	var zombies []int32
	for _, p := range procs {
		statuses, err := p.StatusWithContext(ctx)
		if err != nil {
			continue
		}
		for _, st := range statuses {
			if st == process.Zombie {
				zombies = append(zombies, p.Pid)
				break
			}
		}
	}
	return zombies, nil
}

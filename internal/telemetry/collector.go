// Package telemetry samples host state through gopsutil. The Collector owns
// the counters carried between cycles (previous NIC totals and sample time)
// so network rates can be derived without any global state.
package telemetry

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/shirou/gopsutil/v4/sensors"
	log "github.com/sirupsen/logrus"
)

// cpuSampleWindow is the blocking window for the utilization sample. Kept
// short so collection stays well under a second.
const cpuSampleWindow = 100 * time.Millisecond

// Collector samples the host. Not safe for concurrent use; the supervisor
// loop is its only caller.
type Collector struct {
	rootPath string

	lastNetRecv   uint64
	lastNetSent   uint64
	lastNetSample time.Time

	lastCPUTotal  float64
	lastCPUUser   float64
	lastCPUSystem float64
	lastCPUIowait float64
}

// NewCollector returns a collector that reports disk usage for rootPath
// (normally "/").
func NewCollector(rootPath string) *Collector {
	if rootPath == "" {
		rootPath = "/"
	}
	return &Collector{rootPath: rootPath}
}

// Collect samples every domain and returns a fresh snapshot. Individual
// failures are recorded on the affected sub-reading; the snapshot-level Err
// is set only when CPU, memory, and disk all failed, which indicates the
// measurement pipeline itself is broken.
func (c *Collector) Collect(ctx context.Context) *Snapshot {
	snap := &Snapshot{Timestamp: time.Now()}

	c.collectCPU(ctx, &snap.CPU)
	c.collectMemory(ctx, &snap.Memory)
	c.collectDisk(ctx, &snap.Disk)
	c.collectNetwork(ctx, &snap.Network)
	c.collectProcesses(ctx, &snap.Processes)
	c.collectTemperatures(ctx, &snap.Temperature)

	if info, err := host.InfoWithContext(ctx); err == nil {
		snap.UptimeSec = info.Uptime
	}

	if snap.CPU.Err != "" && snap.Memory.Err != "" && snap.Disk.Err != "" {
		snap.Err = fmt.Sprintf("core readings failed: cpu=%s mem=%s disk=%s",
			snap.CPU.Err, snap.Memory.Err, snap.Disk.Err)
	}
	return snap
}

func (c *Collector) collectCPU(ctx context.Context, out *CPUReading) {
	percents, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
	if err != nil || len(percents) == 0 {
		out.Err = errString(err, "cpu percent unavailable")
		return
	}
	out.Percent = clamp(percents[0], 0, 100)

	// Breakdown comes from cumulative time deltas carried across cycles,
	// so the first cycle reports zeros for user/system/iowait.
	if stats, terr := cpu.TimesWithContext(ctx, false); terr == nil && len(stats) > 0 {
		s := stats[0]
		total := s.User + s.System + s.Nice + s.Idle + s.Iowait + s.Irq + s.Softirq + s.Steal + s.Guest + s.GuestNice
		deltaTotal := total - c.lastCPUTotal
		if c.lastCPUTotal > 0 && deltaTotal > 0 {
			out.PercentUser = clamp((s.User-c.lastCPUUser)/deltaTotal*100, 0, 100)
			out.PercentSystem = clamp((s.System-c.lastCPUSystem)/deltaTotal*100, 0, 100)
			out.PercentIowait = clamp((s.Iowait-c.lastCPUIowait)/deltaTotal*100, 0, 100)
		}
		c.lastCPUTotal = total
		c.lastCPUUser = s.User
		c.lastCPUSystem = s.System
		c.lastCPUIowait = s.Iowait
	}

	if n, cerr := cpu.CountsWithContext(ctx, true); cerr == nil {
		out.CoresLogical = n
	}
	if n, cerr := cpu.CountsWithContext(ctx, false); cerr == nil {
		out.CoresPhysical = n
	}
	if avg, lerr := load.AvgWithContext(ctx); lerr == nil && avg != nil {
		out.Load1 = avg.Load1
		out.Load5 = avg.Load5
		out.Load15 = avg.Load15
	}
}

func (c *Collector) collectMemory(ctx context.Context, out *MemoryReading) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil || vm == nil {
		out.Err = errString(err, "virtual memory unavailable")
		return
	}
	out.VirtualTotal = vm.Total
	out.VirtualAvailable = vm.Available
	out.VirtualPercent = clamp(vm.UsedPercent, 0, 100)

	if swap, serr := mem.SwapMemoryWithContext(ctx); serr == nil && swap != nil {
		out.SwapTotal = swap.Total
		out.SwapUsed = swap.Used
		out.SwapPercent = clamp(swap.UsedPercent, 0, 100)
	}
}

func (c *Collector) collectDisk(ctx context.Context, out *DiskReading) {
	out.Path = c.rootPath
	usage, err := disk.UsageWithContext(ctx, c.rootPath)
	if err != nil || usage == nil {
		out.Err = errString(err, "disk usage unavailable")
		return
	}
	out.Total = usage.Total
	out.Used = usage.Used
	out.Free = usage.Free
	out.Percent = clamp(usage.UsedPercent, 0, 100)

	if counters, ioErr := disk.IOCountersWithContext(ctx); ioErr == nil {
		for _, ctr := range counters {
			out.ReadCount += ctr.ReadCount
			out.WriteCount += ctr.WriteCount
			out.ReadBytes += ctr.ReadBytes
			out.WriteBytes += ctr.WriteBytes
		}
	}
}

func (c *Collector) collectNetwork(ctx context.Context, out *NetworkReading) {
	counters, err := gnet.IOCountersWithContext(ctx, false)
	if err != nil || len(counters) == 0 {
		out.Err = errString(err, "net counters unavailable")
		return
	}
	ctr := counters[0]
	out.BytesSent = ctr.BytesSent
	out.BytesRecv = ctr.BytesRecv
	out.PacketsSent = ctr.PacketsSent
	out.PacketsRecv = ctr.PacketsRecv
	out.ErrIn = ctr.Errin
	out.ErrOut = ctr.Errout
	out.DropIn = ctr.Dropin
	out.DropOut = ctr.Dropout

	now := time.Now()
	if !c.lastNetSample.IsZero() && now.After(c.lastNetSample) {
		elapsed := now.Sub(c.lastNetSample).Seconds()
		if elapsed > 0 {
			if ctr.BytesRecv >= c.lastNetRecv {
				out.RecvKBps = float64(ctr.BytesRecv-c.lastNetRecv) / elapsed / 1024
			}
			if ctr.BytesSent >= c.lastNetSent {
				out.SentKBps = float64(ctr.BytesSent-c.lastNetSent) / elapsed / 1024
			}
		}
	}
	c.lastNetRecv = ctr.BytesRecv
	c.lastNetSent = ctr.BytesSent
	c.lastNetSample = now

	conns, cerr := gnet.ConnectionsWithContext(ctx, "inet")
	if cerr != nil {
		// Usually EACCES for an unprivileged agent; counters are still good.
		out.ConnErr = cerr.Error()
		return
	}
	for _, conn := range conns {
		switch conn.Status {
		case "LISTEN":
			out.Listening++
		case "ESTABLISHED":
			out.Established++
		}
	}
}

func (c *Collector) collectProcesses(ctx context.Context, out *ProcessReading) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		out.Err = errString(err, "process list unavailable")
		return
	}
	out.Total = len(procs)
	for _, p := range procs {
		statuses, serr := p.StatusWithContext(ctx)
		if serr != nil {
			continue
		}
		for _, st := range statuses {
			if st == process.Zombie {
				out.Zombies++
				break
			}
		}
	}
}

// readTemperatures is swapped in tests; sensor availability depends on the
// host and cannot be forced from a test process.
var readTemperatures = sensors.TemperaturesWithContext

// isNotImplemented reports whether err is gopsutil's "not implemented yet"
// sentinel. The sentinel lives in gopsutil's internal/common package, which
// external modules cannot import, so it has to be matched by message.
func isNotImplemented(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not implemented yet")
}

func (c *Collector) collectTemperatures(ctx context.Context, out *SensorReading) {
	out.Sensors = map[string]float64{}
	stats, err := readTemperatures(ctx)
	if isNotImplemented(err) {
		// Platform has no sensor support at all; Supported stays false and
		// diagnostics treats the domain as nominal.
		return
	}
	if err != nil && len(stats) == 0 {
		out.Err = err.Error()
		return
	}
	if err != nil {
		// Partial read; keep what we got but note the failure.
		log.Debugf("telemetry: partial sensor read: %v", err)
	}
	for _, stat := range stats {
		if math.IsNaN(stat.Temperature) || stat.Temperature == 0 {
			continue
		}
		out.Sensors[stat.SensorKey] = stat.Temperature
	}
	out.Supported = len(stats) > 0
}

func errString(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}

func clamp(val, min, max float64) float64 {
	if math.IsNaN(val) {
		return min
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

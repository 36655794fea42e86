package telemetry

import "time"

// Snapshot is a point-in-time aggregate of host readings. It is produced
// fresh every cycle and never mutated after construction. Sub-readings that
// could not be collected carry a non-empty Err instead of being omitted, so
// diagnostics can tell "no problem" apart from "couldn't check".
type Snapshot struct {
	Timestamp   time.Time        `json:"timestamp"`
	CPU         CPUReading       `json:"cpu"`
	Memory      MemoryReading    `json:"memory"`
	Disk        DiskReading      `json:"disk"`
	Network     NetworkReading   `json:"network"`
	Processes   ProcessReading   `json:"processes"`
	Temperature SensorReading    `json:"temperature"`
	UptimeSec   uint64           `json:"uptime_seconds"`

	// Err is set when the measurement pipeline as a whole is unusable
	// (every core reading failed). The supervisor shortens its sleep and
	// retries rather than acting on a blank snapshot.
	Err string `json:"error,omitempty"`
}

// Failed reports whether the snapshot is unusable as a whole.
func (s *Snapshot) Failed() bool { return s.Err != "" }

// CPUReading covers utilization, core counts, and load averages.
type CPUReading struct {
	Percent       float64 `json:"percent"`
	PercentUser   float64 `json:"percent_user"`
	PercentSystem float64 `json:"percent_system"`
	PercentIowait float64 `json:"percent_iowait"`
	CoresLogical  int     `json:"cores_logical"`
	CoresPhysical int     `json:"cores_physical"`
	Load1         float64 `json:"load_avg_1m"`
	Load5         float64 `json:"load_avg_5m"`
	Load15        float64 `json:"load_avg_15m"`
	Err           string  `json:"error,omitempty"`
}

// MemoryReading covers virtual memory and swap.
type MemoryReading struct {
	VirtualTotal     uint64  `json:"virtual_total_bytes"`
	VirtualAvailable uint64  `json:"virtual_available_bytes"`
	VirtualPercent   float64 `json:"virtual_percent"`
	SwapTotal        uint64  `json:"swap_total_bytes"`
	SwapUsed         uint64  `json:"swap_used_bytes"`
	SwapPercent      float64 `json:"swap_percent"`
	Err              string  `json:"error,omitempty"`
}

// DiskReading covers root filesystem usage plus aggregate IO counters.
type DiskReading struct {
	Path       string  `json:"path"`
	Total      uint64  `json:"total_bytes"`
	Used       uint64  `json:"used_bytes"`
	Free       uint64  `json:"free_bytes"`
	Percent    float64 `json:"percent"`
	ReadCount  uint64  `json:"io_read_count"`
	WriteCount uint64  `json:"io_write_count"`
	ReadBytes  uint64  `json:"io_read_bytes"`
	WriteBytes uint64  `json:"io_write_bytes"`
	Err        string  `json:"error,omitempty"`
}

// NetworkReading carries cumulative NIC counters, the rates computed against
// the previous cycle, and connection tallies. ConnErr is tracked separately
// because connection enumeration commonly fails with EACCES while the
// counters remain fine.
type NetworkReading struct {
	BytesSent   uint64  `json:"bytes_sent"`
	BytesRecv   uint64  `json:"bytes_recv"`
	PacketsSent uint64  `json:"packets_sent"`
	PacketsRecv uint64  `json:"packets_recv"`
	ErrIn       uint64  `json:"errin"`
	ErrOut      uint64  `json:"errout"`
	DropIn      uint64  `json:"dropin"`
	DropOut     uint64  `json:"dropout"`
	SentKBps    float64 `json:"sent_kbps"`
	RecvKBps    float64 `json:"recv_kbps"`
	Listening   int     `json:"listening"`
	Established int     `json:"established"`
	ConnErr     string  `json:"connections_error,omitempty"`
	Err         string  `json:"error,omitempty"`
}

// ProcessReading counts total and zombie processes.
type ProcessReading struct {
	Total   int    `json:"total"`
	Zombies int    `json:"zombie"`
	Err     string `json:"error,omitempty"`
}

// SensorReading holds per-sensor temperatures in Celsius. Supported is false
// on hosts with no temperature sensors at all, which diagnostics treats as
// nominal rather than a failure.
type SensorReading struct {
	Sensors   map[string]float64 `json:"sensors"`
	Supported bool               `json:"supported"`
	Err       string             `json:"error,omitempty"`
}

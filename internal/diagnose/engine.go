// Package diagnose turns a telemetry snapshot into an ordered severity
// verdict. Six domain checks run in a fixed order against configured
// thresholds; an ERROR in any domain stops evaluation immediately, because it
// means the measurement pipeline is unreliable and later verdicts that cycle
// cannot be trusted.
package diagnose

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"sysward/internal/config"
	"sysward/internal/telemetry"
)

// NIC counter levels above which the network check raises a warning. These
// are deliberately not configurable; on a healthy host both sit at zero.
const (
	netErrorThreshold = 100
	netDropThreshold  = 1000
)

// Alerter receives the structured summary whenever a cycle's overall status
// is not NOMINAL. The engine is the only component allowed to trigger it.
type Alerter interface {
	Alert(subject, body string)
}

// DialFunc is the connectivity probe, injectable for tests.
type DialFunc func(network, address string, timeout time.Duration) (net.Conn, error)

// Engine evaluates snapshots against a fixed configuration.
type Engine struct {
	cfg     *config.Config
	alerter Alerter
	dial    DialFunc
}

// NewEngine builds an engine. alerter may be nil when alerting is disabled
// entirely; dial defaults to net.DialTimeout.
func NewEngine(cfg *config.Config, alerter Alerter) *Engine {
	return &Engine{cfg: cfg, alerter: alerter, dial: net.DialTimeout}
}

// SetDialer overrides the connectivity probe. Used by tests.
func (e *Engine) SetDialer(dial DialFunc) { e.dial = dial }

type checkFunc func(*telemetry.Snapshot) (Result, error)

// Diagnose evaluates the snapshot and returns one cycle's verdict. Evaluation
// is idempotent for a given snapshot and configuration, except that the
// network probe observes the live network.
func (e *Engine) Diagnose(snap *telemetry.Snapshot) *Diagnostics {
	checks := map[string]checkFunc{
		DomainCPU:         e.checkCPU,
		DomainMemory:      e.checkMemory,
		DomainDisk:        e.checkDisk,
		DomainProcesses:   e.checkProcesses,
		DomainNetwork:     e.checkNetwork,
		DomainTemperature: e.checkTemperature,
	}

	diags := &Diagnostics{Overall: Nominal}
	for _, domain := range domainOrder {
		result, err := checks[domain](snap)
		if err != nil {
			// A fault inside the check itself; converted, never propagated.
			result = Result{}
			result.Add(IssueCheckFault, nil, err.Error(), Error)
		}
		diags.Domains = append(diags.Domains, DomainResult{Domain: domain, Result: result})

		if result.Status == Error {
			// Measurement pipeline unreliable: pin the verdict and skip the
			// remaining domains this cycle.
			diags.Overall = Error
			break
		}
		if result.Status > diags.Overall {
			diags.Overall = result.Status
		}
	}

	log.Infof("diagnostics complete: overall=%s", diags.Overall)
	if diags.Overall != Nominal {
		e.reportIssues(diags)
	}
	return diags
}

func (e *Engine) reportIssues(diags *Diagnostics) {
	detail, err := json.MarshalIndent(diags.Domains, "", "  ")
	if err != nil {
		detail = []byte(fmt.Sprintf("marshal failure: %v", err))
	}
	log.Warnf("diagnostic detail:\n%s", detail)
	if e.alerter != nil {
		e.alerter.Alert(
			fmt.Sprintf("System status %s", diags.Overall),
			fmt.Sprintf("Diagnostics detected issues.\nOverall: %s\n\nDetails:\n%s", diags.Overall, detail),
		)
	}
}

func (e *Engine) checkCPU(snap *telemetry.Snapshot) (Result, error) {
	var r Result
	reading := snap.CPU
	if reading.Err != "" {
		r.Add(IssueMissingData, nil, "cpu data unavailable: "+reading.Err, Error)
		return r, nil
	}
	if reading.Percent > e.cfg.CPUThreshold {
		r.Add(IssueHighCPU, reading.Percent,
			fmt.Sprintf("cpu usage %.1f%% exceeds threshold %.1f%%", reading.Percent, e.cfg.CPUThreshold), Critical)
	}
	if reading.CoresLogical > 0 {
		limit := float64(reading.CoresLogical) * 1.5
		if reading.Load1 > limit {
			r.Add(IssueHighLoad, round2(reading.Load1),
				fmt.Sprintf("load average %.2f exceeds 1.5x %d cores", reading.Load1, reading.CoresLogical), Warning)
		}
	}
	return r, nil
}

func (e *Engine) checkMemory(snap *telemetry.Snapshot) (Result, error) {
	var r Result
	reading := snap.Memory
	if reading.Err != "" {
		r.Add(IssueMissingData, nil, "memory data unavailable: "+reading.Err, Error)
		return r, nil
	}
	if reading.VirtualPercent > e.cfg.MemoryThreshold {
		r.Add(IssueHighMemory, reading.VirtualPercent,
			fmt.Sprintf("memory usage %.1f%% exceeds threshold %.1f%%", reading.VirtualPercent, e.cfg.MemoryThreshold), Critical)
	}
	if reading.SwapPercent > e.cfg.SwapThreshold {
		r.Add(IssueHighSwap, reading.SwapPercent,
			fmt.Sprintf("swap usage %.1f%% exceeds threshold %.1f%%", reading.SwapPercent, e.cfg.SwapThreshold), Warning)
	}
	return r, nil
}

func (e *Engine) checkDisk(snap *telemetry.Snapshot) (Result, error) {
	var r Result
	reading := snap.Disk
	if reading.Err != "" {
		r.Add(IssueMissingData, nil, "disk data unavailable: "+reading.Err, Error)
		return r, nil
	}
	if reading.Percent > e.cfg.DiskThreshold {
		r.Add(IssueLowDisk, reading.Percent,
			fmt.Sprintf("disk %q usage %.1f%% exceeds threshold %.1f%%", reading.Path, reading.Percent, e.cfg.DiskThreshold), Critical)
	}
	return r, nil
}

func (e *Engine) checkProcesses(snap *telemetry.Snapshot) (Result, error) {
	var r Result
	reading := snap.Processes
	if reading.Err != "" {
		r.Add(IssueMissingData, nil, "process data unavailable: "+reading.Err, Error)
		return r, nil
	}
	if reading.Zombies > e.cfg.ZombieThreshold {
		r.Add(IssueZombieProcesses, reading.Zombies,
			fmt.Sprintf("%d zombie processes exceed threshold %d", reading.Zombies, e.cfg.ZombieThreshold), Warning)
	}
	return r, nil
}

func (e *Engine) checkNetwork(snap *telemetry.Snapshot) (Result, error) {
	var r Result
	reading := snap.Network
	if reading.Err != "" {
		r.Add(IssueMissingData, nil, "network data unavailable: "+reading.Err, Error)
		return r, nil
	}

	addr := net.JoinHostPort(e.cfg.NetConnectHost, fmt.Sprintf("%d", e.cfg.NetConnectPort))
	conn, err := e.dial("tcp", addr, e.cfg.NetConnectTimeout())
	if err != nil {
		r.Add(IssueNetConnect, addr,
			fmt.Sprintf("connectivity probe to %s failed: %v", addr, err), Critical)
	} else {
		_ = conn.Close()
	}

	if reading.ErrIn > netErrorThreshold || reading.ErrOut > netErrorThreshold {
		r.Add(IssueNetErrors, map[string]uint64{"in": reading.ErrIn, "out": reading.ErrOut},
			fmt.Sprintf("NIC error counters high (in=%d out=%d)", reading.ErrIn, reading.ErrOut), Warning)
	}
	if reading.DropIn > netDropThreshold || reading.DropOut > netDropThreshold {
		r.Add(IssueNetDrops, map[string]uint64{"in": reading.DropIn, "out": reading.DropOut},
			fmt.Sprintf("NIC drop counters high (in=%d out=%d)", reading.DropIn, reading.DropOut), Warning)
	}
	return r, nil
}

func (e *Engine) checkTemperature(snap *telemetry.Snapshot) (Result, error) {
	var r Result
	reading := snap.Temperature
	if reading.Err != "" {
		r.Add(IssueSensorRead, nil, "temperature read failed: "+reading.Err, Warning)
		return r, nil
	}
	// Supported is false when the platform has no sensor backing at all; the
	// collector classifies that, so an unsupported host is simply nominal.
	if !reading.Supported {
		return r, nil
	}

	hot := map[string]float64{}
	for name, temp := range reading.Sensors {
		if temp > e.cfg.TempAlertThreshold {
			hot[name] = temp
		}
	}
	if len(hot) > 0 {
		r.Add(IssueHighTemperature, hot,
			fmt.Sprintf("%d sensor(s) above %.1f C", len(hot), e.cfg.TempAlertThreshold), Critical)
	}
	return r, nil
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

// Package agent runs the monitoring loop: collect, diagnose, advise, heal,
// housekeep, publish, sleep. One Supervisor per process.
package agent

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"sysward/internal/advisor"
	"sysward/internal/config"
	"sysward/internal/diagnose"
	"sysward/internal/heal"
	"sysward/internal/telemetry"
)

// sleepTick is how often the shutdown flag is checked during the
// between-cycle sleep.
const sleepTick = 500 * time.Millisecond

// Collector produces one snapshot per cycle.
type Collector interface {
	Collect(ctx context.Context) *telemetry.Snapshot
}

// Diagnoser turns a snapshot into a verdict.
type Diagnoser interface {
	Diagnose(snap *telemetry.Snapshot) *diagnose.Diagnostics
}

// Healer executes remediation for a verdict.
type Healer interface {
	Heal(ctx context.Context, diags *diagnose.Diagnostics) []heal.Action
}

// Maintainer runs opportunistic housekeeping; returns true when it ran.
type Maintainer interface {
	RefreshManDB(ctx context.Context) bool
}

// Broadcaster receives the serialized per-cycle report.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Supervisor owns the cycle loop and the state the API reads.
type Supervisor struct {
	cfg         *config.Config
	collector   Collector
	engine      Diagnoser
	healer      Healer
	maintenance Maintainer
	advisor     advisor.Advisor
	hub         Broadcaster

	running    atomic.Bool
	cycles     atomic.Uint64
	startedAt  time.Time
	lastManDB  time.Time

	mu        sync.RWMutex
	lastSnap  *telemetry.Snapshot
	lastDiags *diagnose.Diagnostics
	actions   actionRing
}

// NewSupervisor wires the loop's collaborators together.
func NewSupervisor(cfg *config.Config, collector Collector, engine Diagnoser,
	healer Healer, maintenance Maintainer, adv advisor.Advisor, hub Broadcaster) *Supervisor {
	return &Supervisor{
		cfg:         cfg,
		collector:   collector,
		engine:      engine,
		healer:      healer,
		maintenance: maintenance,
		advisor:     adv,
		hub:         hub,
		// Set at construction, not in Run: the API goroutine reads it
		// concurrently with Run starting.
		startedAt: time.Now(),
	}
}

// Stop flips the running flag; the loop exits at the next tick.
func (s *Supervisor) Stop() {
	s.running.Store(false)
}

// Run executes cycles until a termination signal or Stop. Blocks.
func (s *Supervisor) Run(ctx context.Context) {
	s.running.Store(true)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Warnf("received signal %s, initiating shutdown", sig)
			s.running.Store(false)
		case <-ctx.Done():
		}
	}()

	log.Infof("supervisor started, monitor interval %s", s.cfg.MonitorInterval())
	for s.running.Load() && ctx.Err() == nil {
		start := time.Now()
		log.Info("--- cycle start ---")

		retry := s.cycle(ctx)

		elapsed := time.Since(start)
		log.Infof("--- cycle end (%.2fs) ---", elapsed.Seconds())

		sleep := s.cfg.MonitorInterval() - elapsed
		if sleep < time.Second {
			sleep = time.Second
		}
		if retry {
			// A blank snapshot is usually transient; try again soon.
			sleep = 5 * time.Second
		}
		s.interruptibleSleep(ctx, sleep)
	}
	log.Info("supervisor shut down")
}

// cycle runs one full pass. Returns true when the cycle should be followed
// by a short retry sleep instead of the full interval. Panics inside a cycle
// are contained; the loop must outlive any single bad cycle.
func (s *Supervisor) cycle(ctx context.Context) (retry bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("unhandled cycle fault: %v\n%s", r, debug.Stack())
		}
	}()

	cycleNum := s.cycles.Add(1)
	start := time.Now()

	snap := s.collector.Collect(ctx)
	if snap.Failed() {
		log.Errorf("snapshot collection failed: %s", snap.Err)
		return true
	}

	diags := s.engine.Diagnose(snap)

	insight, err := s.advisor.Analyze(ctx, snap, diags)
	if err != nil {
		log.Warnf("advisor analysis failed: %v", err)
	} else if insight != "" {
		log.Infof("advisor insight: %s", insight)
	}

	var actions []heal.Action
	if diags.Overall != diagnose.Nominal {
		actions = s.healer.Heal(ctx, diags)
	}

	s.runMaintenance(ctx)

	s.mu.Lock()
	s.lastSnap = snap
	s.lastDiags = diags
	s.actions.add(actions)
	s.mu.Unlock()

	s.publish(&CycleReport{
		Cycle:       cycleNum,
		StartedAt:   start,
		DurationMS:  time.Since(start).Milliseconds(),
		Snapshot:    snap,
		Diagnostics: diags,
		Actions:     actions,
		Insight:     insight,
	})
	return false
}

func (s *Supervisor) runMaintenance(ctx context.Context) {
	if time.Since(s.lastManDB) < s.cfg.MandbMinInterval() {
		return
	}
	if s.maintenance.RefreshManDB(ctx) {
		s.lastManDB = time.Now()
	}
}

func (s *Supervisor) publish(report *CycleReport) {
	if s.hub == nil {
		return
	}
	b, err := json.Marshal(report)
	if err != nil {
		log.Warnf("serializing cycle report: %v", err)
		return
	}
	s.hub.Broadcast(b)
}

// interruptibleSleep waits for d while honoring Stop, signals, and context
// cancellation at tick granularity.
func (s *Supervisor) interruptibleSleep(ctx context.Context, d time.Duration) {
	deadline := time.Now().Add(d)
	for s.running.Load() && ctx.Err() == nil {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		if remaining > sleepTick {
			remaining = sleepTick
		}
		select {
		case <-time.After(remaining):
		case <-ctx.Done():
			return
		}
	}
}

// LastSnapshot returns the most recent usable snapshot, or nil before the
// first completed cycle.
func (s *Supervisor) LastSnapshot() *telemetry.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSnap
}

// LastDiagnostics returns the most recent verdict, or nil.
func (s *Supervisor) LastDiagnostics() *diagnose.Diagnostics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastDiags
}

// RecentActions returns the healing action history, oldest first.
func (s *Supervisor) RecentActions() []heal.Action {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actions.recent()
}

// CycleCount returns the number of cycles started.
func (s *Supervisor) CycleCount() uint64 { return s.cycles.Load() }

// StartedAt returns when the supervisor was constructed. Immutable after
// NewSupervisor, so concurrent reads from the API are safe.
func (s *Supervisor) StartedAt() time.Time { return s.startedAt }

// ConfigView returns the redacted configuration for the API.
func (s *Supervisor) ConfigView() map[string]interface{} { return s.cfg.Redacted() }

// Package heal maps diagnostic verdicts to privileged remediation actions.
// Every action is independent and best-effort: a failed command surfaces in
// the action's details, never as an error to the supervisor. All commands go
// through the execx runner; nothing here shells out directly.
package heal

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"sysward/internal/config"
	"sysward/internal/diagnose"
	"sysward/internal/execx"
)

// processGracePeriod protects just-spawned children from CPU mitigation.
const processGracePeriod = 10 * time.Second

// CommandRunner is the privileged execution dependency; *execx.Runner
// satisfies it.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, opts execx.Options) execx.Result
}

// Orchestrator decides and executes remediation for one diagnostics verdict.
type Orchestrator struct {
	cfg    *config.Config
	runner CommandRunner

	// Swappable process enumeration for tests.
	listProcs   ProcessLister
	listZombies ZombieLister
}

// NewOrchestrator wires the orchestrator with live process enumeration.
func NewOrchestrator(cfg *config.Config, runner CommandRunner) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		runner:      runner,
		listProcs:   listProcesses,
		listZombies: listZombies,
	}
}

// Heal evaluates the verdict and runs the enabled per-domain actions for
// domains that are not NOMINAL. Returns the actions taken, possibly none.
func (o *Orchestrator) Heal(ctx context.Context, diags *diagnose.Diagnostics) []Action {
	if !o.cfg.SelfHealingEnabled || diags.Overall == diagnose.Nominal {
		return nil
	}
	log.Warnf("overall status %s, evaluating self-healing actions", diags.Overall)

	var actions []Action
	appendAction := func(a *Action) {
		if a != nil {
			actions = append(actions, *a)
			log.Warnf("healing action %s finished: %s (%v)", a.Kind, a.Status, a.Details)
		}
	}

	if diags.DomainStatus(diagnose.DomainCPU) != diagnose.Nominal {
		appendAction(o.healCPU(ctx, diags.Domain(diagnose.DomainCPU)))
	}
	if diags.DomainStatus(diagnose.DomainMemory) != diagnose.Nominal {
		appendAction(o.healMemory(ctx))
	}
	if diags.DomainStatus(diagnose.DomainProcesses) != diagnose.Nominal {
		appendAction(o.healProcesses(ctx))
	}
	if diags.DomainStatus(diagnose.DomainDisk) != diagnose.Nominal {
		appendAction(o.healDisk(ctx))
	}
	if diags.DomainStatus(diagnose.DomainNetwork) != diagnose.Nominal {
		appendAction(o.healNetwork(ctx))
	}

	if len(actions) == 0 {
		log.Info("no self-healing actions triggered")
	}
	return actions
}

// healCPU terminates the heaviest non-exempt processes. Entry requires the
// worst observed CPU reading to exceed the (higher) self-heal threshold, not
// just the diagnostic one.
func (o *Orchestrator) healCPU(ctx context.Context, cpuResult *diagnose.Result) *Action {
	if !o.cfg.HealCPUEnabled || cpuResult == nil {
		return nil
	}
	worst := worstIssueValue(cpuResult, diagnose.IssueHighCPU)
	if worst < o.cfg.HealCPUThreshold {
		return nil
	}
	log.Warnf("attempting CPU mitigation (usage %.1f%%)", worst)

	procs, err := o.listProcs(ctx)
	if err != nil {
		return &Action{Kind: ActionMitigateCPU, Status: StatusFailed,
			Details: map[string]interface{}{"error": err.Error()}}
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].CPUPercent > procs[j].CPUPercent })

	var killed []int32
	now := time.Now()
	for _, p := range procs {
		if len(killed) >= o.cfg.HealCPUKillLimit {
			break
		}
		if p.CPUPercent <= o.cfg.CPUThreshold {
			continue
		}
		if o.cfg.ExcludedProcess(p.Name) || p.Username == "root" {
			continue
		}
		age := now.Sub(time.UnixMilli(p.CreateTime))
		if age < processGracePeriod {
			continue
		}
		log.Warnf("CPU mitigation: terminating pid %d (name=%s user=%s cpu=%.1f%%)",
			p.PID, p.Name, p.Username, p.CPUPercent)
		res := o.runner.Run(ctx, []string{"kill", strconv.Itoa(int(p.PID))}, execx.Options{Sudo: true})
		if res.OK {
			killed = append(killed, p.PID)
		}
		// A single failed termination does not abort the remaining candidates.
	}

	return &Action{
		Kind:   ActionMitigateCPU,
		Status: StatusAttempted,
		Details: map[string]interface{}{
			"killed_pids":  killed,
			"killed_count": len(killed),
		},
	}
}

// healMemory drops the page cache.
func (o *Orchestrator) healMemory(ctx context.Context) *Action {
	if !o.cfg.HealMemoryEnabled || !o.cfg.HealMemoryClearCaches {
		return nil
	}
	log.Warn("attempting memory mitigation: dropping caches")
	res := o.runner.Run(ctx, []string{"sync && echo 3 > /proc/sys/vm/drop_caches"},
		execx.Options{Sudo: true, Shell: true})
	status := StatusSuccess
	detail := "caches dropped"
	if !res.OK {
		status = StatusFailed
		detail = res.Output
	}
	return &Action{Kind: ActionClearCaches, Status: status,
		Details: map[string]interface{}{"output": detail}}
}

// healProcesses asks init to reap zombies. Zombies cannot be killed directly;
// signaling PID 1 is the only lever.
func (o *Orchestrator) healProcesses(ctx context.Context) *Action {
	if !o.cfg.HealProcessesEnabled || !o.cfg.HealProcessesCleanupZombies {
		return nil
	}
	log.Warn("attempting process mitigation: reaping zombies")
	zombies, err := o.listZombies(ctx)
	if err != nil {
		return &Action{Kind: ActionCleanupZombies, Status: StatusFailed,
			Details: map[string]interface{}{"error": err.Error()}}
	}
	if len(zombies) == 0 {
		return &Action{Kind: ActionCleanupZombies, Status: StatusNoActionNeeded}
	}
	log.Warnf("found %d zombie processes %v, signaling init", len(zombies), zombies)

	res := o.runner.Run(ctx, []string{"kill", "-s", "SIGCHLD", "1"}, execx.Options{Sudo: true})
	status := StatusSuccess
	if !res.OK {
		status = StatusFailed
	}
	return &Action{
		Kind:   ActionCleanupZombies,
		Status: status,
		Details: map[string]interface{}{
			"zombies_found": zombies,
			"sigchld_sent":  res.OK,
		},
	}
}

// healDisk deletes aged files under the configured log and tmp paths. Each
// path is handled independently; the action aggregates the per-path results.
func (o *Orchestrator) healDisk(ctx context.Context) *Action {
	if !o.cfg.HealDiskEnabled {
		return nil
	}
	log.Warn("attempting disk mitigation: pruning aged log/tmp files")

	targets := []struct {
		path      string
		ageDays   int
		timeField string
		label     string
	}{
		{o.cfg.HealDiskLogPath, o.cfg.HealDiskLogMaxAgeDays, "-mtime", "log"},
		{o.cfg.HealDiskTmpPath, o.cfg.HealDiskTmpMaxAgeDays, "-atime", "tmp"},
	}

	var details []map[string]interface{}
	okCount := 0
	for _, t := range targets {
		detail := map[string]interface{}{
			"path": t.path, "age_days": t.ageDays, "success": false,
		}
		info, err := os.Stat(t.path)
		if err != nil || !info.IsDir() {
			log.Warnf("disk mitigation skipped for missing path %s", t.path)
			detail["output"] = "path does not exist, skipped"
		} else {
			res := o.runner.Run(ctx, []string{
				"find", t.path, "-type", "f", t.timeField, fmt.Sprintf("+%d", t.ageDays),
				"-print", "-delete",
			}, execx.Options{Sudo: true})
			detail["success"] = res.OK
			if res.OK {
				okCount++
				detail["output"] = fmt.Sprintf("deleted aged %s files", t.label)
			} else {
				detail["output"] = res.Output
			}
		}
		details = append(details, detail)
	}

	status := StatusPartialFailure
	switch okCount {
	case len(targets):
		status = StatusSuccess
	case 0:
		status = StatusFailed
	}
	return &Action{Kind: ActionManageDisk, Status: status,
		Details: map[string]interface{}{"paths": details}}
}

// healNetwork restarts the configured services in order, stopping at the
// first success.
func (o *Orchestrator) healNetwork(ctx context.Context) *Action {
	if !o.cfg.HealNetworkEnabled {
		return nil
	}
	services := o.cfg.HealNetworkServiceNames
	if len(services) == 0 {
		log.Warn("network mitigation enabled but no services configured")
		return nil
	}
	log.Warn("attempting network mitigation: restarting services")

	var attempted []string
	lastError := ""
	for _, svc := range services {
		attempted = append(attempted, svc)
		log.Infof("restarting service %s", svc)
		res := o.runner.Run(ctx, []string{"systemctl", "restart", svc}, execx.Options{Sudo: true})
		if res.OK {
			return &Action{
				Kind:   ActionRestartNetwork,
				Status: StatusSuccess,
				Details: map[string]interface{}{
					"services_attempted": attempted,
					"restarted":          svc,
				},
			}
		}
		lastError = res.Output
		log.Warnf("restart of %s failed: %s", svc, res.Output)
	}
	return &Action{
		Kind:   ActionRestartNetwork,
		Status: StatusFailed,
		Details: map[string]interface{}{
			"services_attempted": attempted,
			"last_error":         lastError,
		},
	}
}

// worstIssueValue returns the largest numeric value among issues of the given
// kind, or 0 when none carry one.
func worstIssueValue(r *diagnose.Result, kind string) float64 {
	worst := 0.0
	for _, issue := range r.Issues {
		if issue.Kind != kind {
			continue
		}
		if v, ok := issue.Value.(float64); ok && v > worst {
			worst = v
		}
	}
	return worst
}

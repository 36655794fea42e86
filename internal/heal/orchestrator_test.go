package heal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysward/internal/config"
	"sysward/internal/diagnose"
	"sysward/internal/execx"
)

// fakeRunner records every command and answers from a script keyed on the
// first argv token ("" matches anything).
type fakeRunner struct {
	calls   [][]string
	opts    []execx.Options
	results map[string]execx.Result
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{results: map[string]execx.Result{}}
}

func (f *fakeRunner) Run(ctx context.Context, argv []string, opts execx.Options) execx.Result {
	f.calls = append(f.calls, argv)
	f.opts = append(f.opts, opts)
	if res, ok := f.results[argv[0]]; ok {
		return res
	}
	if res, ok := f.results[""]; ok {
		return res
	}
	return execx.Result{OK: true}
}

func (f *fakeRunner) commandLines() []string {
	var out []string
	for _, argv := range f.calls {
		out = append(out, strings.Join(argv, " "))
	}
	return out
}

func healConfig() *config.Config {
	cfg, err := config.FromMap(map[string]interface{}{
		"self_healing_enabled":      true,
		"self_heal_cpu_enabled":     true,
		"self_heal_network_enabled": true,
	})
	if err != nil {
		panic(err)
	}
	return cfg
}

func criticalDiags(domain string) *diagnose.Diagnostics {
	d := &diagnose.Diagnostics{Overall: diagnose.Critical}
	var r diagnose.Result
	r.Add(diagnose.IssueCheckFault, nil, "placeholder", diagnose.Critical)
	d.Domains = append(d.Domains, diagnose.DomainResult{Domain: domain, Result: r})
	return d
}

func cpuDiags(percent float64) *diagnose.Diagnostics {
	d := &diagnose.Diagnostics{Overall: diagnose.Critical}
	var r diagnose.Result
	r.Add(diagnose.IssueHighCPU, percent, "cpu high", diagnose.Critical)
	d.Domains = append(d.Domains, diagnose.DomainResult{Domain: diagnose.DomainCPU, Result: r})
	return d
}

func newTestOrchestrator(cfg *config.Config, runner CommandRunner) *Orchestrator {
	o := NewOrchestrator(cfg, runner)
	o.listProcs = func(ctx context.Context) ([]ProcInfo, error) { return nil, nil }
	o.listZombies = func(ctx context.Context) ([]int32, error) { return nil, nil }
	return o
}

func TestHealSkipsWhenDisabled(t *testing.T) {
	cfg := healConfig()
	cfg.SelfHealingEnabled = false
	runner := newFakeRunner()

	actions := newTestOrchestrator(cfg, runner).Heal(context.Background(), cpuDiags(99))

	assert.Nil(t, actions)
	assert.Empty(t, runner.calls)
}

func TestHealSkipsNominalVerdict(t *testing.T) {
	runner := newFakeRunner()
	o := newTestOrchestrator(healConfig(), runner)

	actions := o.Heal(context.Background(), &diagnose.Diagnostics{Overall: diagnose.Nominal})

	assert.Nil(t, actions)
	assert.Empty(t, runner.calls)
}

func TestCPUMitigationKillsOnlyEligibleProcesses(t *testing.T) {
	cfg := healConfig()
	runner := newFakeRunner()
	o := newTestOrchestrator(cfg, runner)

	old := time.Now().Add(-time.Hour).UnixMilli()
	o.listProcs = func(ctx context.Context) ([]ProcInfo, error) {
		return []ProcInfo{
			{PID: 100, Name: "stress-ng", CPUPercent: 99, Username: "app", CreateTime: old},
			{PID: 101, Name: "sshd", CPUPercent: 98, Username: "app", CreateTime: old},   // excluded by default
			{PID: 102, Name: "miner", CPUPercent: 97, Username: "root", CreateTime: old}, // root-owned
			{PID: 103, Name: "burst", CPUPercent: 96, Username: "app", CreateTime: time.Now().UnixMilli()}, // too young
			{PID: 104, Name: "idle-thing", CPUPercent: 3, Username: "app", CreateTime: old},                // under per-process floor
			{PID: 105, Name: "also-hot", CPUPercent: 95, Username: "app", CreateTime: old},
			{PID: 106, Name: "third-hot", CPUPercent: 94, Username: "app", CreateTime: old}, // over kill limit
		}, nil
	}

	actions := o.Heal(context.Background(), cpuDiags(99))

	require.Len(t, actions, 1)
	action := actions[0]
	assert.Equal(t, ActionMitigateCPU, action.Kind)
	assert.Equal(t, StatusAttempted, action.Status)
	assert.Equal(t, []int32{100, 105}, action.Details["killed_pids"])
	assert.Equal(t, 2, action.Details["killed_count"])

	lines := runner.commandLines()
	require.Len(t, lines, 2)
	assert.Equal(t, "kill 100", lines[0])
	assert.Equal(t, "kill 105", lines[1])
	assert.True(t, runner.opts[0].Sudo)
}

func TestCPUMitigationRequiresSelfHealThreshold(t *testing.T) {
	cfg := healConfig() // heal threshold defaults to 95
	runner := newFakeRunner()
	o := newTestOrchestrator(cfg, runner)

	// CPU over the diagnostic threshold but under the mitigation gate.
	actions := o.Heal(context.Background(), cpuDiags(88))

	assert.Empty(t, actions)
	assert.Empty(t, runner.calls)
}

func TestMemoryMitigationDropsCaches(t *testing.T) {
	runner := newFakeRunner()
	o := newTestOrchestrator(healConfig(), runner)

	actions := o.Heal(context.Background(), criticalDiags(diagnose.DomainMemory))

	require.Len(t, actions, 1)
	assert.Equal(t, ActionClearCaches, actions[0].Kind)
	assert.Equal(t, StatusSuccess, actions[0].Status)

	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0][0], "drop_caches")
	assert.True(t, runner.opts[0].Shell)
	assert.True(t, runner.opts[0].Sudo)
}

func TestZombieCleanup(t *testing.T) {
	t.Run("no zombies means no action needed", func(t *testing.T) {
		runner := newFakeRunner()
		o := newTestOrchestrator(healConfig(), runner)

		actions := o.Heal(context.Background(), criticalDiags(diagnose.DomainProcesses))

		require.Len(t, actions, 1)
		assert.Equal(t, ActionCleanupZombies, actions[0].Kind)
		assert.Equal(t, StatusNoActionNeeded, actions[0].Status)
		assert.Empty(t, runner.calls)
	})

	t.Run("zombies trigger sigchld to init", func(t *testing.T) {
		runner := newFakeRunner()
		o := newTestOrchestrator(healConfig(), runner)
		o.listZombies = func(ctx context.Context) ([]int32, error) { return []int32{4242, 4243}, nil }

		actions := o.Heal(context.Background(), criticalDiags(diagnose.DomainProcesses))

		require.Len(t, actions, 1)
		assert.Equal(t, StatusSuccess, actions[0].Status)
		assert.Equal(t, []int32{4242, 4243}, actions[0].Details["zombies_found"])
		assert.Equal(t, true, actions[0].Details["sigchld_sent"])
		require.Len(t, runner.calls, 1)
		assert.Equal(t, []string{"kill", "-s", "SIGCHLD", "1"}, runner.calls[0])
	})
}

func TestDiskCleanup(t *testing.T) {
	t.Run("both paths pruned", func(t *testing.T) {
		cfg := healConfig()
		cfg.HealDiskLogPath = t.TempDir()
		cfg.HealDiskTmpPath = t.TempDir()
		runner := newFakeRunner()
		o := newTestOrchestrator(cfg, runner)

		actions := o.Heal(context.Background(), criticalDiags(diagnose.DomainDisk))

		require.Len(t, actions, 1)
		assert.Equal(t, ActionManageDisk, actions[0].Kind)
		assert.Equal(t, StatusSuccess, actions[0].Status)

		lines := runner.commandLines()
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], "-mtime +30")
		assert.Contains(t, lines[1], "-atime +7")
		assert.Contains(t, lines[0], "-delete")
	})

	t.Run("missing path yields partial failure", func(t *testing.T) {
		cfg := healConfig()
		cfg.HealDiskLogPath = t.TempDir()
		cfg.HealDiskTmpPath = "/no/such/dir/sysward-test"
		runner := newFakeRunner()
		o := newTestOrchestrator(cfg, runner)

		actions := o.Heal(context.Background(), criticalDiags(diagnose.DomainDisk))

		require.Len(t, actions, 1)
		assert.Equal(t, StatusPartialFailure, actions[0].Status)
		assert.Len(t, runner.calls, 1, "find runs only for the existing path")
	})

	t.Run("every path failing yields failure", func(t *testing.T) {
		cfg := healConfig()
		cfg.HealDiskLogPath = t.TempDir()
		cfg.HealDiskTmpPath = t.TempDir()
		runner := newFakeRunner()
		runner.results["find"] = execx.Result{Output: "permission denied"}
		o := newTestOrchestrator(cfg, runner)

		actions := o.Heal(context.Background(), criticalDiags(diagnose.DomainDisk))

		require.Len(t, actions, 1)
		assert.Equal(t, StatusFailed, actions[0].Status)
	})
}

func TestNetworkRestart(t *testing.T) {
	t.Run("stops at first successful restart", func(t *testing.T) {
		cfg := healConfig()
		cfg.HealNetworkServiceNames = []string{"networking", "NetworkManager"}
		runner := newFakeRunner()
		o := newTestOrchestrator(cfg, runner)

		actions := o.Heal(context.Background(), criticalDiags(diagnose.DomainNetwork))

		require.Len(t, actions, 1)
		assert.Equal(t, ActionRestartNetwork, actions[0].Kind)
		assert.Equal(t, StatusSuccess, actions[0].Status)
		assert.Equal(t, "networking", actions[0].Details["restarted"])
		assert.Len(t, runner.calls, 1)
	})

	t.Run("all failures reported", func(t *testing.T) {
		cfg := healConfig()
		cfg.HealNetworkServiceNames = []string{"networking", "NetworkManager"}
		runner := newFakeRunner()
		runner.results["systemctl"] = execx.Result{Output: "unit not found"}
		o := newTestOrchestrator(cfg, runner)

		actions := o.Heal(context.Background(), criticalDiags(diagnose.DomainNetwork))

		require.Len(t, actions, 1)
		assert.Equal(t, StatusFailed, actions[0].Status)
		assert.Equal(t, []string{"networking", "NetworkManager"}, actions[0].Details["services_attempted"])
		assert.Len(t, runner.calls, 2)
	})

	t.Run("disabled network healing takes no action", func(t *testing.T) {
		cfg := healConfig()
		cfg.HealNetworkEnabled = false
		runner := newFakeRunner()
		o := newTestOrchestrator(cfg, runner)

		actions := o.Heal(context.Background(), criticalDiags(diagnose.DomainNetwork))

		assert.Empty(t, actions)
	})
}

func TestManDBRefresh(t *testing.T) {
	t.Run("runs when cpu is low", func(t *testing.T) {
		runner := newFakeRunner()
		m := NewMaintenance(50, runner)
		m.cpuPercent = func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error) {
			return []float64{12}, nil
		}

		assert.True(t, m.RefreshManDB(context.Background()))
		require.Len(t, runner.calls, 1)
		assert.Equal(t, []string{"mandb", "-q"}, runner.calls[0])
		assert.True(t, runner.opts[0].Sudo)
	})

	t.Run("deferred when cpu is busy", func(t *testing.T) {
		runner := newFakeRunner()
		m := NewMaintenance(50, runner)
		m.cpuPercent = func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error) {
			return []float64{75}, nil
		}

		assert.False(t, m.RefreshManDB(context.Background()))
		assert.Empty(t, runner.calls)
	})

	t.Run("skipped when sampling fails", func(t *testing.T) {
		runner := newFakeRunner()
		m := NewMaintenance(50, runner)
		m.cpuPercent = func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error) {
			return nil, context.DeadlineExceeded
		}

		assert.False(t, m.RefreshManDB(context.Background()))
		assert.Empty(t, runner.calls)
	})

	t.Run("failed command does not reset the clock", func(t *testing.T) {
		runner := newFakeRunner()
		runner.results["mandb"] = execx.Result{Output: "mandb: command failed"}
		m := NewMaintenance(50, runner)
		m.cpuPercent = func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error) {
			return []float64{10}, nil
		}

		assert.False(t, m.RefreshManDB(context.Background()))
	})
}

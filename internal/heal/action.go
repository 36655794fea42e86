package heal

// Action kinds.
const (
	ActionMitigateCPU    = "MITIGATE_CPU_PRESSURE"
	ActionClearCaches    = "CLEAR_MEMORY_CACHES"
	ActionCleanupZombies = "CLEANUP_ZOMBIE_PROCESSES"
	ActionManageDisk     = "MANAGE_DISK_SPACE"
	ActionRestartNetwork = "RESTART_NETWORKING"
)

// Status of a completed healing action.
type Status string

const (
	StatusAttempted      Status = "ATTEMPTED"
	StatusSuccess        Status = "SUCCESS"
	StatusFailed         Status = "FAILED"
	StatusPartialFailure Status = "PARTIAL_FAILURE"
	StatusNoActionNeeded Status = "NO_ACTION_NEEDED"
)

// Action records one remediation attempt. Actions are never retried across
// cycles; the next cycle re-evaluates from scratch.
type Action struct {
	Kind    string                 `json:"action"`
	Status  Status                 `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
}

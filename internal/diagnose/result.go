package diagnose

// Issue kinds emitted by the domain checks.
const (
	IssueHighCPU         = "HIGH_CPU"
	IssueHighLoad        = "HIGH_LOAD"
	IssueHighMemory      = "HIGH_MEMORY"
	IssueHighSwap        = "HIGH_SWAP"
	IssueLowDisk         = "LOW_DISK"
	IssueZombieProcesses = "ZOMBIE_PROCESSES"
	IssueNetConnect      = "NET_CONNECT"
	IssueNetErrors       = "NET_ERRORS"
	IssueNetDrops        = "NET_DROPS"
	IssueHighTemperature = "HIGH_TEMPERATURE"
	IssueSensorRead      = "SENSOR_READ"
	IssueMissingData     = "MISSING_DATA"
	IssueCheckFault      = "CHECK_FAULT"
)

// Issue is one finding within a domain: what was detected, the offending
// value, and a human description.
type Issue struct {
	Kind        string      `json:"kind"`
	Value       interface{} `json:"value"`
	Description string      `json:"description"`
}

// Result is the verdict for one domain: a severity plus the ordered issues
// that produced it.
type Result struct {
	Status Severity `json:"status"`
	Issues []Issue  `json:"issues"`
}

// Add appends an issue and raises the status to sev when sev is higher.
// Appending can never lower an already-raised status.
func (r *Result) Add(kind string, value interface{}, description string, sev Severity) {
	r.Issues = append(r.Issues, Issue{Kind: kind, Value: value, Description: description})
	if sev > r.Status {
		r.Status = sev
	}
}

// Domain names in their fixed evaluation order.
const (
	DomainCPU         = "cpu"
	DomainMemory      = "memory"
	DomainDisk        = "disk"
	DomainProcesses   = "processes"
	DomainNetwork     = "network"
	DomainTemperature = "temperature"
)

var domainOrder = []string{
	DomainCPU, DomainMemory, DomainDisk, DomainProcesses, DomainNetwork, DomainTemperature,
}

// DomainResult pairs a domain name with its verdict.
type DomainResult struct {
	Domain string `json:"domain"`
	Result
}

// Diagnostics is one cycle's verdict: the evaluated domains in order plus the
// overall severity. When an ERROR short-circuits evaluation, Domains holds
// only the domains examined up to and including the failing one.
type Diagnostics struct {
	Overall Severity       `json:"overall_status"`
	Domains []DomainResult `json:"domains"`
}

// Domain returns the result for name, or nil when the domain was not
// evaluated this cycle.
func (d *Diagnostics) Domain(name string) *Result {
	for i := range d.Domains {
		if d.Domains[i].Domain == name {
			return &d.Domains[i].Result
		}
	}
	return nil
}

// DomainStatus returns the evaluated status for name, defaulting to NOMINAL
// for unevaluated domains.
func (d *Diagnostics) DomainStatus(name string) Severity {
	if r := d.Domain(name); r != nil {
		return r.Status
	}
	return Nominal
}

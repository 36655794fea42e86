package config

// FieldKind is the declared value type of a schema field.
type FieldKind int

const (
	KindInt FieldKind = iota
	KindFloat
	KindString
	KindBool
	KindStringList
)

func (k FieldKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindStringList:
		return "string list"
	default:
		return "unknown"
	}
}

// FieldSpec declares one configuration key: its type, an optional
// validator/v10 constraint tag (min/max/oneof), its default, and the setter
// that stores the accepted value on Config. Validation never leaves a field
// unset: a raw value that fails the type or constraint check is replaced by
// Default.
type FieldSpec struct {
	Key     string
	Kind    FieldKind
	Tag     string
	Default interface{}
	set     func(c *Config, v interface{})
}

// schema lists every recognized configuration key. Keys absent from the input
// file take their defaults; keys present in the file but not listed here are
// ignored with a log line.
var schema = []FieldSpec{
	{Key: "monitor_interval", Kind: KindInt, Tag: "min=10", Default: 60,
		set: func(c *Config, v interface{}) { c.MonitorIntervalSec = v.(int) }},
	{Key: "log_level", Kind: KindString, Tag: "oneof=DEBUG INFO WARNING ERROR CRITICAL", Default: "INFO",
		set: func(c *Config, v interface{}) { c.LogLevel = v.(string) }},
	{Key: "log_file", Kind: KindString, Default: "/var/log/sysward/sysward.log",
		set: func(c *Config, v interface{}) { c.LogFile = v.(string) }},
	{Key: "listen_addr", Kind: KindString, Default: "127.0.0.1:9310",
		set: func(c *Config, v interface{}) { c.ListenAddr = v.(string) }},

	{Key: "cpu_threshold", Kind: KindFloat, Tag: "min=0,max=100", Default: 85.0,
		set: func(c *Config, v interface{}) { c.CPUThreshold = v.(float64) }},
	{Key: "memory_threshold", Kind: KindFloat, Tag: "min=0,max=100", Default: 90.0,
		set: func(c *Config, v interface{}) { c.MemoryThreshold = v.(float64) }},
	{Key: "disk_threshold", Kind: KindFloat, Tag: "min=0,max=100", Default: 85.0,
		set: func(c *Config, v interface{}) { c.DiskThreshold = v.(float64) }},
	{Key: "swap_threshold", Kind: KindFloat, Tag: "min=0,max=100", Default: 75.0,
		set: func(c *Config, v interface{}) { c.SwapThreshold = v.(float64) }},
	{Key: "zombie_threshold", Kind: KindInt, Tag: "min=0", Default: 10,
		set: func(c *Config, v interface{}) { c.ZombieThreshold = v.(int) }},
	{Key: "temp_alert_threshold", Kind: KindFloat, Default: 80.0,
		set: func(c *Config, v interface{}) { c.TempAlertThreshold = v.(float64) }},

	{Key: "network_connectivity_host", Kind: KindString, Default: "8.8.8.8",
		set: func(c *Config, v interface{}) { c.NetConnectHost = v.(string) }},
	{Key: "network_connectivity_port", Kind: KindInt, Tag: "min=1,max=65535", Default: 53,
		set: func(c *Config, v interface{}) { c.NetConnectPort = v.(int) }},
	{Key: "network_connectivity_timeout", Kind: KindInt, Tag: "min=1", Default: 3,
		set: func(c *Config, v interface{}) { c.NetConnectTimeoutSec = v.(int) }},

	{Key: "cpu_permit_man_update", Kind: KindFloat, Tag: "min=0,max=100", Default: 50.0,
		set: func(c *Config, v interface{}) { c.CPUPermitManUpdate = v.(float64) }},
	{Key: "mandb_min_interval_hours", Kind: KindInt, Tag: "min=1", Default: 6,
		set: func(c *Config, v interface{}) { c.MandbMinIntervalHours = v.(int) }},

	{Key: "email_alerts_enabled", Kind: KindBool, Default: false,
		set: func(c *Config, v interface{}) { c.EmailAlertsEnabled = v.(bool) }},
	{Key: "email_recipient", Kind: KindString, Default: "",
		set: func(c *Config, v interface{}) { c.EmailRecipient = v.(string) }},
	{Key: "email_sender", Kind: KindString, Default: "sysward@localhost",
		set: func(c *Config, v interface{}) { c.EmailSender = v.(string) }},
	{Key: "smtp_host", Kind: KindString, Default: "localhost",
		set: func(c *Config, v interface{}) { c.SMTPHost = v.(string) }},
	{Key: "smtp_port", Kind: KindInt, Tag: "min=1,max=65535", Default: 25,
		set: func(c *Config, v interface{}) { c.SMTPPort = v.(int) }},
	{Key: "discord_webhook_url", Kind: KindString, Default: "",
		set: func(c *Config, v interface{}) { c.DiscordWebhookURL = v.(string) }},
	{Key: "alert_min_interval_seconds", Kind: KindInt, Tag: "min=0", Default: 300,
		set: func(c *Config, v interface{}) { c.AlertMinIntervalSec = v.(int) }},

	{Key: "ollama_enabled", Kind: KindBool, Default: false,
		set: func(c *Config, v interface{}) { c.OllamaEnabled = v.(bool) }},
	{Key: "ollama_host", Kind: KindString, Default: "http://127.0.0.1:11434",
		set: func(c *Config, v interface{}) { c.OllamaHost = v.(string) }},
	{Key: "ollama_model", Kind: KindString, Default: "gemma:2b",
		set: func(c *Config, v interface{}) { c.OllamaModel = v.(string) }},
	{Key: "ollama_init_timeout_seconds", Kind: KindInt, Tag: "min=10", Default: 180,
		set: func(c *Config, v interface{}) { c.OllamaInitTimeoutSec = v.(int) }},

	{Key: "self_healing_enabled", Kind: KindBool, Default: true,
		set: func(c *Config, v interface{}) { c.SelfHealingEnabled = v.(bool) }},
	{Key: "self_heal_cpu_enabled", Kind: KindBool, Default: false,
		set: func(c *Config, v interface{}) { c.HealCPUEnabled = v.(bool) }},
	{Key: "self_heal_cpu_threshold", Kind: KindFloat, Tag: "min=0,max=100", Default: 95.0,
		set: func(c *Config, v interface{}) { c.HealCPUThreshold = v.(float64) }},
	{Key: "self_heal_cpu_kill_limit", Kind: KindInt, Tag: "min=0", Default: 2,
		set: func(c *Config, v interface{}) { c.HealCPUKillLimit = v.(int) }},
	{Key: "self_heal_cpu_exclude_procs", Kind: KindStringList, Default: defaultExcludedProcs,
		set: func(c *Config, v interface{}) { c.HealCPUExcludeProcs = v.([]string) }},

	{Key: "self_heal_memory_enabled", Kind: KindBool, Default: true,
		set: func(c *Config, v interface{}) { c.HealMemoryEnabled = v.(bool) }},
	{Key: "self_heal_memory_clear_caches", Kind: KindBool, Default: true,
		set: func(c *Config, v interface{}) { c.HealMemoryClearCaches = v.(bool) }},

	{Key: "self_heal_processes_enabled", Kind: KindBool, Default: true,
		set: func(c *Config, v interface{}) { c.HealProcessesEnabled = v.(bool) }},
	{Key: "self_heal_processes_cleanup_zombies", Kind: KindBool, Default: true,
		set: func(c *Config, v interface{}) { c.HealProcessesCleanupZombies = v.(bool) }},

	{Key: "self_heal_disk_enabled", Kind: KindBool, Default: true,
		set: func(c *Config, v interface{}) { c.HealDiskEnabled = v.(bool) }},
	{Key: "self_heal_disk_log_path", Kind: KindString, Default: "/var/log",
		set: func(c *Config, v interface{}) { c.HealDiskLogPath = v.(string) }},
	{Key: "self_heal_disk_log_max_age_days", Kind: KindInt, Tag: "min=1", Default: 30,
		set: func(c *Config, v interface{}) { c.HealDiskLogMaxAgeDays = v.(int) }},
	{Key: "self_heal_disk_tmp_path", Kind: KindString, Default: "/tmp",
		set: func(c *Config, v interface{}) { c.HealDiskTmpPath = v.(string) }},
	{Key: "self_heal_disk_tmp_max_age_days", Kind: KindInt, Tag: "min=1", Default: 7,
		set: func(c *Config, v interface{}) { c.HealDiskTmpMaxAgeDays = v.(int) }},

	{Key: "self_heal_network_enabled", Kind: KindBool, Default: false,
		set: func(c *Config, v interface{}) { c.HealNetworkEnabled = v.(bool) }},
	{Key: "self_heal_network_service_names", Kind: KindStringList,
		Default: []string{"networking", "NetworkManager", "systemd-networkd"},
		set: func(c *Config, v interface{}) { c.HealNetworkServiceNames = v.([]string) }},
}

// defaultExcludedProcs shields core system daemons, container runtimes, and
// sysward's own dependencies from the CPU mitigation action.
var defaultExcludedProcs = []string{
	"systemd", "kthreadd", "sshd", "rsyslogd", "journald", "dbus-daemon",
	"login", "agetty", "containerd", "dockerd", "kubelet", "supervisord",
	"sysward", "ollama",
}

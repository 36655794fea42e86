// Package config loads the sysward configuration file and validates it
// against a field schema. Validation is forgiving by construction: a missing
// or corrupt file, an ill-typed value, or an out-of-range value never aborts
// startup; the offending field falls back to its documented default and the
// rejection is logged. After Load returns, every schema field holds a
// concrete in-range value and the Config is treated as immutable.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

// Config is the fully validated runtime configuration. Fields mirror the
// schema in schema.go one-to-one.
type Config struct {
	MonitorIntervalSec int
	LogLevel           string
	LogFile            string
	ListenAddr         string

	CPUThreshold       float64
	MemoryThreshold    float64
	DiskThreshold      float64
	SwapThreshold      float64
	ZombieThreshold    int
	TempAlertThreshold float64

	NetConnectHost       string
	NetConnectPort       int
	NetConnectTimeoutSec int

	CPUPermitManUpdate    float64
	MandbMinIntervalHours int

	EmailAlertsEnabled  bool
	EmailRecipient      string
	EmailSender         string
	SMTPHost            string
	SMTPPort            int
	DiscordWebhookURL   string
	AlertMinIntervalSec int

	OllamaEnabled        bool
	OllamaHost           string
	OllamaModel          string
	OllamaInitTimeoutSec int

	SelfHealingEnabled bool

	HealCPUEnabled      bool
	HealCPUThreshold    float64
	HealCPUKillLimit    int
	HealCPUExcludeProcs []string

	HealMemoryEnabled     bool
	HealMemoryClearCaches bool

	HealProcessesEnabled        bool
	HealProcessesCleanupZombies bool

	HealDiskEnabled       bool
	HealDiskLogPath       string
	HealDiskLogMaxAgeDays int
	HealDiskTmpPath       string
	HealDiskTmpMaxAgeDays int

	HealNetworkEnabled      bool
	HealNetworkServiceNames []string

	excluded map[string]struct{}
}

var validate = validator.New()

// Load reads the configuration file at path, merges it over the schema
// defaults, and validates every field. The returned error is reserved for a
// structurally unusable result, which cannot occur while the schema defaults
// themselves are well-formed; file-level problems are logged and recovered.
func Load(path string) (*Config, error) {
	raw := map[string]interface{}{}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Warnf("config file %s not found, using defaults", path)
	case err != nil:
		log.Warnf("config file %s unreadable (%v), using defaults", path, err)
	default:
		if jsonErr := json.Unmarshal(data, &raw); jsonErr != nil {
			log.Warnf("config file %s is not valid JSON (%v), using defaults", path, jsonErr)
			raw = map[string]interface{}{}
		}
	}

	return validateRaw(raw)
}

// FromMap validates an already-decoded configuration map. Exists so tests
// and embedders can build a Config without a file on disk.
func FromMap(raw map[string]interface{}) (*Config, error) {
	return validateRaw(raw)
}

// validateRaw applies the schema to a raw key/value map.
func validateRaw(raw map[string]interface{}) (*Config, error) {
	known := make(map[string]struct{}, len(schema))
	cfg := &Config{}

	for _, spec := range schema {
		known[spec.Key] = struct{}{}

		value, err := acceptValue(spec, raw[spec.Key])
		if err != nil {
			log.Warnf("config: key %q value %v rejected (%v), using default %v",
				spec.Key, raw[spec.Key], err, spec.Default)
			value, err = acceptValue(spec, spec.Default)
			if err != nil {
				// Unreachable while the schema defaults are well-formed.
				return nil, fmt.Errorf("config: default for %q is unusable: %w", spec.Key, err)
			}
		}
		spec.set(cfg, value)
	}

	for key := range raw {
		if _, ok := known[key]; !ok {
			log.Warnf("config: ignoring unknown key %q", key)
		}
	}

	cfg.applyCrossFieldRules()
	return cfg, nil
}

// acceptValue coerces raw into the field's declared Go type and checks the
// constraint tag. nil raw (key absent) is reported as an error so the caller
// substitutes the default.
func acceptValue(spec FieldSpec, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, fmt.Errorf("missing")
	}

	switch spec.Kind {
	case KindInt:
		n, ok := asInt(raw)
		if !ok {
			return nil, fmt.Errorf("expected %s, got %T", spec.Kind, raw)
		}
		if err := checkTag(n, spec.Tag); err != nil {
			return nil, err
		}
		return n, nil

	case KindFloat:
		// An integer is accepted where a float is expected.
		f, ok := asFloat(raw)
		if !ok {
			return nil, fmt.Errorf("expected %s, got %T", spec.Kind, raw)
		}
		if err := checkTag(f, spec.Tag); err != nil {
			return nil, err
		}
		return f, nil

	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected %s, got %T", spec.Kind, raw)
		}
		if strings.HasPrefix(spec.Tag, "oneof=") {
			s = strings.ToUpper(strings.TrimSpace(s))
		}
		if err := checkTag(s, spec.Tag); err != nil {
			return nil, err
		}
		return s, nil

	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected %s, got %T", spec.Kind, raw)
		}
		return b, nil

	case KindStringList:
		list, ok := asStringList(raw)
		if !ok {
			return nil, fmt.Errorf("expected %s, got %T", spec.Kind, raw)
		}
		return list, nil
	}
	return nil, fmt.Errorf("unknown field kind %d", spec.Kind)
}

func checkTag(value interface{}, tag string) error {
	if tag == "" {
		return nil
	}
	if err := validate.Var(value, tag); err != nil {
		return fmt.Errorf("constraint %q failed", tag)
	}
	return nil
}

func asInt(raw interface{}) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		// JSON numbers decode as float64; accept only integral values.
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

func asFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func asStringList(raw interface{}) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// applyCrossFieldRules enforces the invariants that span multiple fields and
// normalizes the process exclusion list into a case-insensitive set.
func (c *Config) applyCrossFieldRules() {
	if c.EmailAlertsEnabled && strings.TrimSpace(c.EmailRecipient) == "" {
		log.Warn("config: email alerts enabled but no recipient set, disabling email alerts")
		c.EmailAlertsEnabled = false
	}

	c.excluded = make(map[string]struct{}, len(c.HealCPUExcludeProcs))
	for i, name := range c.HealCPUExcludeProcs {
		lower := strings.ToLower(name)
		c.HealCPUExcludeProcs[i] = lower
		c.excluded[lower] = struct{}{}
	}
}

// DisableOllama is invoked at startup when the advisor backend turned out to
// be unreachable. The one sanctioned mutation of a loaded Config; it happens
// before the supervisor starts.
func (c *Config) DisableOllama(reason string) {
	if c.OllamaEnabled {
		log.Warnf("config: insight advisor disabled: %s", reason)
		c.OllamaEnabled = false
	}
}

// ExcludedProcess reports whether name is exempt from CPU mitigation,
// case-insensitively.
func (c *Config) ExcludedProcess(name string) bool {
	_, ok := c.excluded[strings.ToLower(name)]
	return ok
}

// MonitorInterval returns the cycle cadence as a duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalSec) * time.Second
}

// NetConnectTimeout returns the connectivity probe timeout as a duration.
func (c *Config) NetConnectTimeout() time.Duration {
	return time.Duration(c.NetConnectTimeoutSec) * time.Second
}

// AlertMinInterval returns the minimum spacing between alert deliveries.
func (c *Config) AlertMinInterval() time.Duration {
	return time.Duration(c.AlertMinIntervalSec) * time.Second
}

// MandbMinInterval returns the minimum spacing between mandb refreshes.
func (c *Config) MandbMinInterval() time.Duration {
	return time.Duration(c.MandbMinIntervalHours) * time.Hour
}

// Redacted returns the configuration as a key/value map with delivery
// endpoints masked, for exposure on the status API.
func (c *Config) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"monitor_interval":                c.MonitorIntervalSec,
		"log_level":                       c.LogLevel,
		"log_file":                        c.LogFile,
		"listen_addr":                     c.ListenAddr,
		"cpu_threshold":                   c.CPUThreshold,
		"memory_threshold":                c.MemoryThreshold,
		"disk_threshold":                  c.DiskThreshold,
		"swap_threshold":                  c.SwapThreshold,
		"zombie_threshold":                c.ZombieThreshold,
		"temp_alert_threshold":            c.TempAlertThreshold,
		"network_connectivity_host":       c.NetConnectHost,
		"network_connectivity_port":       c.NetConnectPort,
		"network_connectivity_timeout":    c.NetConnectTimeoutSec,
		"email_alerts_enabled":            c.EmailAlertsEnabled,
		"email_recipient":                 mask(c.EmailRecipient),
		"discord_webhook_configured":      c.DiscordWebhookURL != "",
		"alert_min_interval_seconds":      c.AlertMinIntervalSec,
		"ollama_enabled":                  c.OllamaEnabled,
		"ollama_model":                    c.OllamaModel,
		"self_healing_enabled":            c.SelfHealingEnabled,
		"self_heal_cpu_enabled":           c.HealCPUEnabled,
		"self_heal_cpu_threshold":         c.HealCPUThreshold,
		"self_heal_cpu_kill_limit":        c.HealCPUKillLimit,
		"self_heal_memory_enabled":        c.HealMemoryEnabled,
		"self_heal_processes_enabled":     c.HealProcessesEnabled,
		"self_heal_disk_enabled":          c.HealDiskEnabled,
		"self_heal_network_enabled":       c.HealNetworkEnabled,
		"self_heal_network_service_names": c.HealNetworkServiceNames,
	}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if at := strings.IndexByte(s, '@'); at > 1 {
		return s[:1] + "***" + s[at:]
	}
	return s[:1] + "***"
}

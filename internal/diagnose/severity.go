package diagnose

import "encoding/json"

// Severity is the ordered health classification used across the agent.
// NOMINAL < WARNING < CRITICAL < ERROR. ERROR is reserved for "the
// measurement itself failed", which outranks any finding a measurement could
// produce.
type Severity int

const (
	Nominal Severity = iota
	Warning
	Critical
	Error
)

func (s Severity) String() string {
	switch s {
	case Nominal:
		return "NOMINAL"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON encodes the severity as its name so logs and the status API
// stay readable.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the severity name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "WARNING":
		*s = Warning
	case "CRITICAL":
		*s = Critical
	case "ERROR":
		*s = Error
	default:
		*s = Nominal
	}
	return nil
}

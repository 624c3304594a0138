package protocol

import "fmt"

// Priority is the declared urgency of a request. The four classes are totally
// ordered; PriorityUnspecified is the zero value and means "use the default".
type Priority int

const (
	PriorityUnspecified Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityNormal:   "normal",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

// Priorities returns the four priority classes from lowest to highest.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical}
}

// ParsePriority maps a wire name to a Priority. Matching is exact.
func ParsePriority(s string) (Priority, bool) {
	for p, name := range priorityNames {
		if name == s {
			return p, true
		}
	}
	return PriorityUnspecified, false
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return "unspecified"
}

// OrDefault returns def when p is unspecified.
func (p Priority) OrDefault(def Priority) Priority {
	if p == PriorityUnspecified {
		return def
	}
	return p
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty value decodes to
// PriorityUnspecified.
func (p *Priority) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*p = PriorityUnspecified
		return nil
	}
	parsed, ok := ParsePriority(string(text))
	if !ok {
		return fmt.Errorf("unknown priority %q", string(text))
	}
	*p = parsed
	return nil
}

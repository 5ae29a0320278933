package incident

import (
	"fmt"
	"strings"
)

// ThreatLevel is the ordinal threat classification of one event or of the
// whole facility.
type ThreatLevel int

const (
	ThreatNone ThreatLevel = iota
	ThreatLow
	ThreatMedium
	ThreatHigh
	ThreatCritical
)

var threatLevelNames = [...]string{
	ThreatNone:     "none",
	ThreatLow:      "low",
	ThreatMedium:   "medium",
	ThreatHigh:     "high",
	ThreatCritical: "critical",
}

// String returns the lowercase wire name of the level.
func (l ThreatLevel) String() string {
	if l < ThreatNone || l > ThreatCritical {
		return fmt.Sprintf("ThreatLevel(%d)", int(l))
	}
	return threatLevelNames[l]
}

// ParseThreatLevel parses a wire name into a level.
func ParseThreatLevel(raw string) (ThreatLevel, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	for level, name := range threatLevelNames {
		if name == value {
			return ThreatLevel(level), nil
		}
	}
	return ThreatNone, fmt.Errorf("unknown threat level %q", raw)
}

// MarshalText implements encoding.TextMarshaler.
func (l ThreatLevel) MarshalText() ([]byte, error) {
	if l < ThreatNone || l > ThreatCritical {
		return nil, fmt.Errorf("invalid threat level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *ThreatLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseThreatLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Max returns the higher of two levels.
func Max(a, b ThreatLevel) ThreatLevel {
	if a > b {
		return a
	}
	return b
}

package types

import "fmt"

// UrgencyLevel represents the triage urgency of a case. Levels are ordered:
// Low < Moderate < High < Critical.
type UrgencyLevel string

const (
	UrgencyLow      UrgencyLevel = "LOW"
	UrgencyModerate UrgencyLevel = "MODERATE"
	UrgencyHigh     UrgencyLevel = "HIGH"
	UrgencyCritical UrgencyLevel = "CRITICAL"
)

var urgencyRank = map[UrgencyLevel]int{
	UrgencyLow:      0,
	UrgencyModerate: 1,
	UrgencyHigh:     2,
	UrgencyCritical: 3,
}

// AllUrgencyLevels returns all valid urgency levels in ascending order
func AllUrgencyLevels() []UrgencyLevel {
	return []UrgencyLevel{
		UrgencyLow,
		UrgencyModerate,
		UrgencyHigh,
		UrgencyCritical,
	}
}

// IsValid checks if the urgency level is valid
func (u UrgencyLevel) IsValid() bool {
	_, ok := urgencyRank[u]
	return ok
}

// AtLeast reports whether u is equal to or more urgent than other
func (u UrgencyLevel) AtLeast(other UrgencyLevel) bool {
	return urgencyRank[u] >= urgencyRank[other]
}

// Max returns the more urgent of u and other
func (u UrgencyLevel) Max(other UrgencyLevel) UrgencyLevel {
	if urgencyRank[other] > urgencyRank[u] {
		return other
	}
	return u
}

// String returns the string representation of the urgency level
func (u UrgencyLevel) String() string {
	return string(u)
}

// ParseUrgencyLevel parses a string into an UrgencyLevel
func ParseUrgencyLevel(s string) (UrgencyLevel, error) {
	level := UrgencyLevel(s)
	if !level.IsValid() {
		return "", fmt.Errorf("invalid urgency level: %s", s)
	}
	return level, nil
}

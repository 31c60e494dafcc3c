package appetite

import (
	"fmt"
	"strings"
)

// RAGStatus is the traffic-light classification of a tolerance limit. It is a
// closed enumeration: no other state may ever appear in snapshots, history or
// alerts. NO_DATA, NO_KRI and UNKNOWN are legitimate persisted values, never
// coerced to GREEN.
type RAGStatus int

const (
	StatusGreen RAGStatus = iota
	StatusAmber
	StatusRed
	StatusNoData
	StatusNoKRI
	StatusUnknown
)

func (s RAGStatus) String() string {
	switch s {
	case StatusGreen:
		return "green"
	case StatusAmber:
		return "amber"
	case StatusRed:
		return "red"
	case StatusNoData:
		return "no_data"
	case StatusNoKRI:
		return "no_kri"
	case StatusUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// ParseRAGStatus converts a stored status string to its enum value.
func ParseRAGStatus(s string) (RAGStatus, error) {
	switch strings.ToLower(s) {
	case "green":
		return StatusGreen, nil
	case "amber":
		return StatusAmber, nil
	case "red":
		return StatusRed, nil
	case "no_data":
		return StatusNoData, nil
	case "no_kri":
		return StatusNoKRI, nil
	case "unknown":
		return StatusUnknown, nil
	default:
		return StatusUnknown, fmt.Errorf("invalid RAG status: %q", s)
	}
}

// IsBreach reports whether the status counts as a tolerance breach.
// NO_DATA, NO_KRI and UNKNOWN are non-breach states.
func (s RAGStatus) IsBreach() bool {
	return s == StatusAmber || s == StatusRed
}

// Severity orders statuses for escalation decisions: non-breach states are 0,
// AMBER is 1, RED is 2. A breach is recorded only when severity strictly
// increases between consecutive evaluations.
func (s RAGStatus) Severity() int {
	switch s {
	case StatusAmber:
		return 1
	case StatusRed:
		return 2
	default:
		return 0
	}
}

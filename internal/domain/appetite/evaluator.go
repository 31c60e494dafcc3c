package appetite

import (
	"github.com/shopspring/decimal"

	"github.com/meridianrisk/raf-engine/internal/domain/kri"
)

// Evaluation is the result of comparing a tolerance limit against its latest
// observation: the RAG status plus the numeric value the decision was based
// on (nil for NO_KRI / NO_DATA).
type Evaluation struct {
	Status RAGStatus
	Value  *decimal.Decimal
}

// Evaluate computes the RAG status of a tolerance limit from its latest
// applicable observation. Pure: no I/O, no shared state; identical inputs
// always yield identical output.
//
// Boundary values are inclusive toward the more severe status: a value
// exactly at the soft limit is AMBER, exactly at the hard limit is RED.
// Malformed stored configuration yields UNKNOWN, never a guessed status.
func Evaluate(limit *ToleranceLimit, obs *kri.Observation) Evaluation {
	if limit.PrimaryKRIID == nil {
		return Evaluation{Status: StatusNoKRI}
	}

	if obs == nil {
		return Evaluation{Status: StatusNoData}
	}

	value := obs.Value
	if err := limit.ValidateThresholds(); err != nil {
		return Evaluation{Status: StatusUnknown, Value: &value}
	}

	var status RAGStatus
	switch limit.Direction {
	case DirectionAbove:
		status = classify(value, limit.SoftLimit, limit.HardLimit)
	case DirectionBelow:
		// Mirror of above: breach grows as the value falls.
		switch {
		case value.GreaterThan(limit.SoftLimit):
			status = StatusGreen
		case value.GreaterThan(limit.HardLimit):
			status = StatusAmber
		default:
			status = StatusRed
		}
	case DirectionOutside:
		deviation := value.Sub(*limit.Target).Abs()
		status = classify(deviation, limit.SoftLimit, limit.HardLimit)
	default:
		return Evaluation{Status: StatusUnknown, Value: &value}
	}

	return Evaluation{Status: status, Value: &value}
}

// classify applies the above-direction rule: v < soft is GREEN,
// soft <= v < hard is AMBER, v >= hard is RED.
func classify(v, soft, hard decimal.Decimal) RAGStatus {
	if v.LessThan(soft) {
		return StatusGreen
	}
	if v.LessThan(hard) {
		return StatusAmber
	}
	return StatusRed
}

package pipeline

import (
	"fmt"

	"github.com/JonMunkholm/campusetl/internal/catalog"
)

// Gate names a quality gate.
type Gate string

const (
	GateErrorRate    Gate = "max_error_rate"
	GateCompleteness Gate = "min_completeness"
	GateConsistency  Gate = "min_consistency"
)

// gateCodes are the support codes reported for failed gates.
var gateCodes = map[Gate]string{
	GateErrorRate:    "GATE001",
	GateCompleteness: "GATE002",
	GateConsistency:  "GATE003",
}

// GateFailure records a quality gate that was not met.
type GateFailure struct {
	Gate      Gate    `json:"gate"`
	Code      string  `json:"code"`
	Actual    float64 `json:"actual"`
	Threshold float64 `json:"threshold"`
}

// Message is the warning text for the failure.
func (g GateFailure) Message() string {
	switch g.Gate {
	case GateErrorRate:
		return fmt.Sprintf("error rate %.2f%% exceeds maximum %.2f%% (%s)", g.Actual, g.Threshold, g.Code)
	case GateCompleteness:
		return fmt.Sprintf("completeness score %.2f is below minimum %.2f (%s)", g.Actual, g.Threshold, g.Code)
	default:
		return fmt.Sprintf("consistency score %.2f is below minimum %.2f (%s)", g.Actual, g.Threshold, g.Code)
	}
}

// evaluateGates checks the gates whose inputs were produced by the stages
// that ran. Profiling gates need stage 2, the error rate gate needs stage 4.
func evaluateGates(cfg catalog.TableConfig, r *Result) []GateFailure {
	var out []GateFailure
	fail := func(g Gate, actual, threshold float64) {
		out = append(out, GateFailure{Gate: g, Code: gateCodes[g], Actual: actual, Threshold: threshold})
	}

	if r.StageCompleted >= StageProfiling {
		if r.CompletenessScore < cfg.MinCompletenessScore {
			fail(GateCompleteness, r.CompletenessScore, cfg.MinCompletenessScore)
		}
		if r.ConsistencyScore < cfg.MinConsistencyScore {
			fail(GateConsistency, r.ConsistencyScore, cfg.MinConsistencyScore)
		}
	}
	if r.StageCompleted >= StageValidation && r.ErrorRate > cfg.MaxErrorRate {
		fail(GateErrorRate, r.ErrorRate, cfg.MaxErrorRate)
	}
	return out
}

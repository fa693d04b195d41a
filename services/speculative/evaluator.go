// Package speculative re-decides a fused context over weighted outcome paths.
package speculative

import (
	"strings"

	"github.com/upb/payment-control-plane/models"
)

// Result is the evaluation of every path and the winning one.
type Result struct {
	States   []models.QuantumState `json:"quantum_states"`
	Best     models.QuantumState   `json:"best_outcome"`
	Decision models.Decision       `json:"decision"`
}

// DefaultPaths returns the reference path set used when a policy does not
// configure one.
func DefaultPaths() []models.SpeculativePath {
	return []models.SpeculativePath{
		{Path: "A_APPROVE", Weight: 0.32},
		{Path: "A_DECLINE", Weight: 0.12},
		{Path: "B_APPROVE", Weight: 0.28},
		{Path: "B_REVIEW", Weight: 0.10},
		{Path: "C_APPROVE", Weight: 0.15},
		{Path: "C_DECLINE", Weight: 0.03},
	}
}

// PathsFor returns the policy's configured paths, or DefaultPaths.
func PathsFor(p models.Policy) []models.SpeculativePath {
	if p.Speculative != nil && len(p.Speculative.Paths) > 0 {
		return p.Speculative.Paths
	}
	return DefaultPaths()
}

func orZero(score *float64) float64 {
	if score == nil {
		return 0
	}
	return *score
}

// Score is weight times the routing score plus every optional sub-score.
func Score(dc models.DecisionContext, weight float64) float64 {
	routing := 0.0
	if dc.Routing != nil {
		routing = dc.Routing.Score
	}

	score := weight * routing
	if dc.Compliance != nil {
		score += orZero(dc.Compliance.Score)
	}
	if dc.Ledger != nil {
		score += orZero(dc.Ledger.Score)
	}
	score += orZero(dc.RiskScore)
	score += orZero(dc.ChainScore)
	return score
}

// DecisionForPath reads the decision out of a path name.
func DecisionForPath(path string) models.Decision {
	switch {
	case strings.Contains(path, string(models.DecisionApprove)):
		return models.DecisionApprove
	case strings.Contains(path, string(models.DecisionReview)):
		return models.DecisionReview
	default:
		return models.DecisionDecline
	}
}

// Evaluate scores every path against dc. The highest score wins, the
// earliest path on a tie. An empty path set declines.
func Evaluate(dc models.DecisionContext, paths []models.SpeculativePath) Result {
	result := Result{
		States:   make([]models.QuantumState, 0, len(paths)),
		Decision: models.DecisionDecline,
	}

	for i, p := range paths {
		state := models.QuantumState{
			Path:       p.Path,
			Weight:     p.Weight,
			FinalScore: Score(dc, p.Weight),
		}
		result.States = append(result.States, state)

		if i == 0 || state.FinalScore > result.Best.FinalScore {
			result.Best = state
		}
	}

	if len(paths) > 0 {
		result.Decision = DecisionForPath(result.Best.Path)
	}
	return result
}

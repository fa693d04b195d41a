// Package pipeline advances payment events through the authorization
// lifecycle. Business effects are attached as stage hooks by the caller.
package pipeline

import "github.com/upb/payment-control-plane/models"

var lifecycle = []models.Stage{
	models.StagePaymentRequested,
	models.StagePaymentValidated,
	models.StagePaymentRouted,
	models.StagePaymentExecuted,
	models.StagePaymentSettled,
}

// Stages returns the lifecycle in order.
func Stages() []models.Stage {
	out := make([]models.Stage, len(lifecycle))
	copy(out, lifecycle)
	return out
}

// NextState returns the stage following current. It reports false for the
// final stage and for stages outside the lifecycle.
func NextState(current models.Stage) (models.Stage, bool) {
	for i, s := range lifecycle {
		if s != current {
			continue
		}
		if i+1 < len(lifecycle) {
			return lifecycle[i+1], true
		}
		return "", false
	}
	return "", false
}

// IsTerminal reports whether no stage follows s.
func IsTerminal(s models.Stage) bool {
	_, ok := NextState(s)
	return !ok
}

// ValidatePipeline reports whether types contains every lifecycle stage.
func ValidatePipeline(types []models.Stage) bool {
	seen := make(map[models.Stage]bool, len(types))
	for _, t := range types {
		seen[t] = true
	}
	for _, s := range lifecycle {
		if !seen[s] {
			return false
		}
	}
	return true
}

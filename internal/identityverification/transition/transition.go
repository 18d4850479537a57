// Package transition picks an application's next status from ordered,
// condition-guarded transition rules.
package transition

import (
	"context"
	"log/slog"

	"idverify/internal/identityverification/condition"
	"idverify/internal/identityverification/models"
)

// Callback kinds and their default statuses when a callback process
// declares no transitions.
const (
	KindExamination = "examination"
	KindResult      = "result"

	StatusExaminationProcessing = "examination_processing"
)

// Evaluator evaluates transitions.
type Evaluator struct {
	logger *slog.Logger
}

// New constructs an Evaluator.
func New(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate returns the first status, in declaration order, whose rule holds
// against doc. ok is false when nothing matched and the status must not change.
func (e *Evaluator) Evaluate(ctx context.Context, transitions models.Ordered[models.TransitionRule], doc map[string]any) (string, bool) {
	for _, status := range transitions.Keys() {
		rule, _ := transitions.Get(status)
		if e.matches(ctx, status, rule, doc) {
			return status, true
		}
	}
	return "", false
}

// matches treats AnyOf as OR over AND-lists; an empty AND-list is true.
func (e *Evaluator) matches(ctx context.Context, status string, rule models.TransitionRule, doc map[string]any) bool {
	for i, group := range rule.AnyOf {
		ok, err := condition.All(group, doc)
		if err != nil {
			if e.logger != nil {
				e.logger.WarnContext(ctx, "transition condition evaluation failed",
					"status", status,
					"group_index", i,
					"error", err.Error(),
				)
			}
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// CallbackDefault is the status a callback moves to when its process has no
// transitions configured.
func CallbackDefault(kind string) (string, bool) {
	switch kind {
	case KindExamination:
		return StatusExaminationProcessing, true
	case KindResult:
		return models.DefaultApprovedStatus, true
	}
	return "", false
}

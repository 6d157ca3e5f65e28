package offsets

import "carbon-scribe/esg-backoffice/accounting-backend/internal/errs"

// Lifecycle enforces offset transaction status transitions
type Lifecycle struct {
	allowedTransitions map[RetirementStatus][]RetirementStatus
}

// NewLifecycle creates the offset lifecycle. Retired and cancelled are terminal.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		allowedTransitions: map[RetirementStatus][]RetirementStatus{
			StatusPending:   {StatusRetired, StatusCancelled},
			StatusRetired:   {},
			StatusCancelled: {},
		},
	}
}

// CanTransition checks if a status transition is allowed
func (l *Lifecycle) CanTransition(from, to RetirementStatus) bool {
	for _, allowed := range l.allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the allowed next statuses for a given status
func (l *Lifecycle) AllowedTransitions(from RetirementStatus) []RetirementStatus {
	allowed, ok := l.allowedTransitions[from]
	if !ok {
		return []RetirementStatus{}
	}
	return allowed
}

// Check returns InvalidInput for a disallowed move. Moving to the current
// status is a no-op and reported as changed == false.
func (l *Lifecycle) Check(from, to RetirementStatus) (changed bool, err error) {
	if !to.Valid() {
		return false, errs.Invalid("status", "unknown retirement status %q", to)
	}
	if from == to {
		return false, nil
	}
	if !l.CanTransition(from, to) {
		return false, errs.Invalid("status", "offset cannot move from %s to %s", from, to)
	}
	return true, nil
}

package scheduling

import (
	"github.com/hms/hms/internal/platform/apperr"
)

// allowedTransitions lists the statuses reachable from each status.
// completed and cancelled are terminal.
var allowedTransitions = map[string]map[string]bool{
	StatusScheduled: {StatusConfirmed: true, StatusCompleted: true, StatusCancelled: true},
	StatusConfirmed: {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted: {},
	StatusCancelled: {},
}

func CanTransition(current, requested string) bool {
	return allowedTransitions[current][requested]
}

// CheckTransition returns an InvalidTransition error unless current may
// move to requested. Self-transitions are rejected.
func CheckTransition(current, requested string) error {
	if !CanTransition(current, requested) {
		return apperr.InvalidTransition(current, requested)
	}
	return nil
}

func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

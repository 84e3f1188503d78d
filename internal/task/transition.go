package task

import "slices"

var transitions = map[Status][]Status{
	StatusCreated:    {StatusAssigned},
	StatusAssigned:   {StatusInProgress},
	StatusInProgress: {StatusCompleted},
	StatusCompleted:  {StatusTesting},
	StatusTesting:    {StatusTestPassed, StatusTestFailed},
	StatusTestPassed: {StatusApproved, StatusRejected},
	StatusTestFailed: {StatusAssigned, StatusRejected},
}

// CanTransition reports whether the lifecycle allows moving from one status
// to another.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// NextStatuses returns the statuses reachable from s in one step.
func NextStatuses(s Status) []Status {
	return slices.Clone(transitions[s])
}

package health

import "time"

func newStatus(component string, state State, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		State:     state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

// NewDegraded creates a new degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

// Aggregate rolls sub-statuses up into one: the worst sub-state wins, and no
// sub-statuses at all counts as healthy.
func Aggregate(component string, subStatuses []Status) Status {
	worst := StateHealthy
	for _, sub := range subStatuses {
		if sub.State.rank() > worst.rank() {
			worst = sub.State
		}
	}

	var status Status
	switch worst {
	case StateHealthy:
		status = NewHealthy(component, "all parts healthy")
	case StateDegraded:
		status = NewDegraded(component, "one or more parts degraded")
	default:
		status = NewUnhealthy(component, "one or more parts unhealthy")
	}

	status.SubStatuses = append([]Status(nil), subStatuses...)
	return status
}

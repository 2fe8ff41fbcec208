package microsched

import "time"

// stopAndDrainTimer stops the timer, consuming any pending value, and
// reports whether the timer was stopped before it fired.
func stopAndDrainTimer(t *time.Timer) (stopped bool) {
	select {
	case <-t.C:
		return false
	default:
		return t.Stop()
	}
}

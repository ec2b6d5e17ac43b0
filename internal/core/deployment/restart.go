package deployment

import "github.com/artpar/deckhand/internal/core/compose"

// =============================================================================
// Restart Decision Functions
// =============================================================================

// RestartDecision carries the inputs of a restart-policy evaluation.
type RestartDecision struct {
	Policy       compose.RestartPolicy
	ExitCode     int
	RestartCount int
	// MaxAttempts is the operator-configured restart ceiling; 0 means
	// unlimited. Applies to every policy except "no".
	MaxAttempts int
	// Stopped is true when the operator explicitly stopped the instance.
	Stopped bool
}

// ShouldRestart evaluates the declared restart policy against an exit.
// Pure function.
//
//   - "no" (or empty): never restart
//   - "on-failure": restart only when the exit code is non-zero
//   - "always", "unless-stopped": restart unconditionally unless the
//     operator stopped the instance
//
// A non-zero MaxAttempts caps restarts for all restarting policies.
func ShouldRestart(d RestartDecision) bool {
	if d.Stopped {
		return false
	}
	if d.MaxAttempts > 0 && d.RestartCount >= d.MaxAttempts {
		return false
	}

	switch d.Policy {
	case compose.RestartAlways, compose.RestartUnlessStopped:
		return true
	case compose.RestartOnFailure:
		return d.ExitCode != 0
	default: // "no" or empty
		return false
	}
}

// ExceededAttempts reports whether a restart was suppressed only by the
// attempts ceiling; such instances are marked failed rather than exited.
func ExceededAttempts(d RestartDecision) bool {
	if d.Stopped || d.MaxAttempts == 0 || d.RestartCount < d.MaxAttempts {
		return false
	}
	unlimited := d
	unlimited.MaxAttempts = 0
	return ShouldRestart(unlimited)
}

// RuntimeRestartPolicy maps a declared policy to the container runtime's
// restart policy, used in detached mode where the daemon supervises.
func RuntimeRestartPolicy(p compose.RestartPolicy, maxAttempts int) (name string, maxRetry int) {
	switch p {
	case compose.RestartAlways:
		return "always", 0
	case compose.RestartOnFailure:
		return "on-failure", maxAttempts
	case compose.RestartUnlessStopped:
		return "unless-stopped", 0
	default:
		return "no", 0
	}
}

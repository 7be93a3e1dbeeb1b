package game

// Phase represents the lifecycle phase of a match session.
type Phase string

const (
	PhaseReadyWait Phase = "READY_WAIT"
	PhaseCountdown Phase = "COUNTDOWN"
	PhaseActive    Phase = "ACTIVE"
	PhaseFinished  Phase = "FINISHED"
	PhaseCancelled Phase = "CANCELLED"
)

// Direction is a player's intended paddle movement.
type Direction string

const (
	DirUp   Direction = "up"
	DirDown Direction = "down"
	DirStop Direction = "stop"
)

// ValidDirection reports whether d is one of the three legal inputs.
func ValidDirection(d Direction) bool {
	return d == DirUp || d == DirDown || d == DirStop
}

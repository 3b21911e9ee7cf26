package lifecycle

// Phase is the orchestrator's position in its one-way lifecycle.
type Phase int32

const (
	PhaseCreated Phase = iota
	PhasePreparing
	PhaseStarting
	PhaseRunning
	PhaseStopping
	PhaseStopped
)

// String returns the lower-case phase name.
func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhasePreparing:
		return "preparing"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

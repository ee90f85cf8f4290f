package controller

// State is the user-facing recording state. Only the controller changes it.
type State int

const (
	Idle State = iota
	Recording
	RecordingLocked
	Finalizing
)

var stateNames = []string{"idle", "recording", "recording_locked", "finalizing"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// IsRecording is true for Recording and RecordingLocked.
func (s State) IsRecording() bool {
	return s == Recording || s == RecordingLocked
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

package container

// Status is the lifecycle state of a Writer.
type Status int

const (
	StatusUnknown Status = iota
	StatusWriting
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusWriting:
		return "writing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "invalid"
	}
}

package overlay

// TrackingReason is the tracker's quality signal for the current frame.
type TrackingReason int

const (
	TrackingNormal TrackingReason = iota
	TrackingUnavailable
	TrackingInsufficientFeatures
	TrackingExcessiveMotion
	TrackingRelocalizing
	TrackingInitializing
)

// TrackingStatus renders reason as the string shown to the user.
func TrackingStatus(reason TrackingReason) string {
	switch reason {
	case TrackingNormal:
		return "normal"
	case TrackingUnavailable:
		return "tracking unavailable"
	case TrackingInsufficientFeatures:
		return "insufficient features"
	case TrackingExcessiveMotion:
		return "excessive motion"
	case TrackingRelocalizing:
		return "relocalizing"
	case TrackingInitializing:
		return "initializing"
	default:
		return "unknown"
	}
}

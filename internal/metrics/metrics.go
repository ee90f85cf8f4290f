package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop stages.
const (
	StageSource   = "source"
	StageThrottle = "throttle"
	StageMuxer    = "muxer"
)

var (
	// Frame intake
	framesSeenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelcam_frames_seen_total",
		Help: "Video frames offered to the recording pipeline",
	})

	framesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelcam_frames_sampled_total",
		Help: "Video frames accepted by the throttler for conversion",
	})

	framesAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelcam_frames_appended_total",
		Help: "Video frames appended to the container writer",
	})

	framesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelcam_frames_dropped_total",
		Help: "Video frames dropped, by pipeline stage and reason",
	}, []string{"stage", "reason"})

	audioChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelcam_audio_chunks_total",
		Help: "Audio chunks handled by the muxer, by result",
	}, []string{"result"})

	// Recording lifecycle
	recordingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelcam_recordings_total",
		Help: "Finished recordings by result",
	}, []string{"result"})

	recordingState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reelcam_recording_state",
		Help: "1 for the current recording controller state, 0 otherwise",
	}, []string{"state"})

	cameraSwitchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelcam_camera_switches_total",
		Help: "Camera source switch requests by result",
	}, []string{"result"})

	handoffTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelcam_handoff_total",
		Help: "Recordings handed to the upload queue by result",
	}, []string{"result"})

	// Timing
	conversionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelcam_conversion_duration_seconds",
		Help:    "Time spent converting raw media into writer samples",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	}, []string{"kind"})

	finalizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reelcam_finalize_duration_seconds",
		Help:    "Time from stop request to a finalized container",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})
)

func IncFramesSeen() {
	framesSeenTotal.Inc()
}

func IncFramesSampled() {
	framesSampledTotal.Inc()
}

func IncFramesAppended() {
	framesAppendedTotal.Inc()
}

// IncFrameDropped counts a dropped video frame.
func IncFrameDropped(stage, reason string) {
	framesDroppedTotal.WithLabelValues(stage, reason).Inc()
}

func IncAudioChunk(result string) {
	audioChunksTotal.WithLabelValues(result).Inc()
}

func IncRecording(result string) {
	recordingsTotal.WithLabelValues(result).Inc()
}

// SetRecordingState marks current as the active state among all.
func SetRecordingState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		recordingState.WithLabelValues(s).Set(v)
	}
}

func IncCameraSwitch(result string) {
	cameraSwitchesTotal.WithLabelValues(result).Inc()
}

func IncHandoff(result string) {
	handoffTotal.WithLabelValues(result).Inc()
}

func ObserveConversion(kind string, seconds float64) {
	conversionDuration.WithLabelValues(kind).Observe(seconds)
}

func ObserveFinalize(seconds float64) {
	finalizeDuration.Observe(seconds)
}

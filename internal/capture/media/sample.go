package media

import "time"

// EncodedVideo is a video sample ready for the container writer.
type EncodedVideo struct {
	Payload []byte // JPEG
	Width   int
	Height  int
	PTS     time.Duration
}

// EncodedAudio is an audio sample ready for the container writer.
type EncodedAudio struct {
	Payload     []byte // big-endian signed 16-bit PCM, mono
	SampleCount int
	SampleRate  int
	PTS         time.Duration
}

func (a EncodedAudio) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(a.SampleCount) * time.Second / time.Duration(a.SampleRate)
}

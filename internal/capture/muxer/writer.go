package muxer

import (
	"time"

	"github.com/zsiec/reelcam/internal/capture/container"
	"github.com/zsiec/reelcam/internal/logger"
)

// TrackInput is the per-track append surface of a container writer.
type TrackInput interface {
	ReadyForMoreMediaData() bool
	Append(s container.Sample) bool
	MarkAsFinished()
}

// ContainerWriter is the subset of container.Writer the muxer drives.
type ContainerWriter interface {
	StartWriting() error
	StartSession(at time.Duration)
	VideoInput() TrackInput
	AudioInput() TrackInput
	Status() container.Status
	Err() error
	FinishWriting(done func())
	Stats() container.Stats
}

// WriterFactory builds an unstarted writer for one recording.
type WriterFactory func(path string, video container.VideoSettings, audio container.AudioSettings) (ContainerWriter, error)

// NewContainerWriterFactory returns a factory producing fragmented MP4
// writers.
func NewContainerWriterFactory(opts container.Options, log logger.Logger) WriterFactory {
	return func(path string, video container.VideoSettings, audio container.AudioSettings) (ContainerWriter, error) {
		w, err := container.Create(path, video, audio, opts, log)
		if err != nil {
			return nil, err
		}
		return fmp4Writer{w}, nil
	}
}

type fmp4Writer struct {
	*container.Writer
}

func (w fmp4Writer) VideoInput() TrackInput { return w.Writer.VideoInput() }
func (w fmp4Writer) AudioInput() TrackInput { return w.Writer.AudioInput() }

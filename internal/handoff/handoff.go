// Package handoff passes finished recordings to the upload collaborator.
package handoff

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("recording not found")

// Recording describes a finalized file awaiting upload.
type Recording struct {
	ID        string        `json:"id"`
	Path      string        `json:"path"`
	Size      int64         `json:"size"`
	Duration  time.Duration `json:"duration"`
	Frames    uint64        `json:"frames"`
	CreatedAt time.Time     `json:"created_at"`
}

// Publisher queues recordings for upload.
type Publisher interface {
	Publish(ctx context.Context, rec *Recording) error
}

// NopPublisher discards recordings. It is used when handoff is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Recording) error { return nil }

// Package video samples representative keyframes from video files.
package video

import (
	"context"
	"image"
)

// Info describes a video stream.
type Info struct {
	FPS        float64 `json:"fps"`
	FrameCount int     `json:"frame_count"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	DurationMs int64   `json:"duration_ms"`
}

// FrameSource decodes frames from one opened video.
type FrameSource interface {
	Info() Info
	// Next decodes the frame at the current position and advances by one.
	// It returns io.EOF at the end of the stream.
	Next() (image.Image, error)
	// Seek moves the position to a zero-based frame index.
	Seek(frame int) error
	Close() error
}

// Opener opens a video file for decoding.
type Opener interface {
	Open(ctx context.Context, path string) (FrameSource, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, path string) (FrameSource, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (FrameSource, error) {
	return f(ctx, path)
}

package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/imaging"
	"github.com/hyperjump/assethub/pkg/utils"
)

// Policy bounds the sampling pass.
type Policy struct {
	// Interval is the sampling interval in seconds.
	Interval  float64
	MinFrames int
	MaxFrames int
	Quality   int
}

// Frame is one sampled keyframe.
type Frame struct {
	// Index is the dense zero-based output index.
	Index int
	// SourceIndex is the frame number in the source stream.
	SourceIndex int
	TimestampMs int64
	Data        []byte
}

// Sampler turns a video into a bounded sequence of JPEG keyframes.
type Sampler struct {
	opener Opener
	policy Policy
	logger *zap.Logger
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) SamplerOption {
	return func(s *Sampler) {
		s.logger = logger
	}
}

// NewSampler creates a sampler. Zero policy fields take the usual defaults:
// 2s interval, 5 to 50 frames, JPEG quality 85.
func NewSampler(opener Opener, policy Policy, opts ...SamplerOption) *Sampler {
	if policy.Interval <= 0 {
		policy.Interval = 2.0
	}
	if policy.MinFrames <= 0 {
		policy.MinFrames = 5
	}
	if policy.MaxFrames <= 0 {
		policy.MaxFrames = 50
	}
	if policy.MaxFrames < policy.MinFrames {
		policy.MaxFrames = policy.MinFrames
	}
	if policy.Quality <= 0 {
		policy.Quality = imaging.DefaultJPEGQuality
	}
	s := &Sampler{opener: opener, policy: policy}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	return s
}

// IntervalFrames returns max(1, floor(fps * interval)).
func IntervalFrames(fps, interval float64) int {
	n := int(math.Floor(fps * interval))
	if n < 1 {
		return 1
	}
	return n
}

// Sample opens path and extracts keyframes. It walks the stream and keeps every
// IntervalFrames-th frame up to MaxFrames. When that yields fewer than MinFrames,
// the result is replaced by MinFrames uniformly spaced frames.
// Failure to open the video fails the call.
func (s *Sampler) Sample(ctx context.Context, path string) ([]Frame, error) {
	src, err := s.opener.Open(ctx, path)
	if err != nil {
		return nil, apperrors.Permanent(fmt.Errorf("failed to open video %s: %w", path, err))
	}
	defer src.Close()

	info := src.Info()
	frames, err := s.sampleInterval(ctx, src, info)
	if err != nil {
		return nil, err
	}

	if len(frames) < s.policy.MinFrames && info.FrameCount > 0 {
		s.logger.Debug("Too few interval frames, sampling uniformly",
			zap.String("path", path),
			zap.Int("frames", len(frames)),
			zap.Int("frame_count", info.FrameCount))
		frames, err = s.sampleUniform(ctx, src, info)
		if err != nil {
			return nil, err
		}
	}
	return frames, nil
}

func (s *Sampler) sampleInterval(ctx context.Context, src FrameSource, info Info) ([]Frame, error) {
	interval := IntervalFrames(info.FPS, s.policy.Interval)
	var frames []Frame
	for idx := 0; len(frames) < s.policy.MaxFrames; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", idx, err)
		}
		if idx%interval != 0 {
			continue
		}
		frame, err := s.encode(img, len(frames), idx, info.FPS)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func (s *Sampler) sampleUniform(ctx context.Context, src FrameSource, info Info) ([]Frame, error) {
	step := max(1, info.FrameCount/s.policy.MinFrames)
	frames := make([]Frame, 0, s.policy.MinFrames)
	for i := 0; i < s.policy.MinFrames; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pos := i * step
		if err := src.Seek(pos); err != nil {
			s.logger.Debug("Seek failed", zap.Int("frame", pos), zap.Error(err))
			continue
		}
		img, err := src.Next()
		if err != nil {
			// Past the end of a clip shorter than MinFrames.
			continue
		}
		frame, err := s.encode(img, len(frames), pos, info.FPS)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func (s *Sampler) encode(img image.Image, index, sourceIndex int, fps float64) (Frame, error) {
	data, err := imaging.EncodeJPEG(img, s.policy.Quality)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode frame %d: %w", sourceIndex, err)
	}
	return Frame{
		Index:       index,
		SourceIndex: sourceIndex,
		TimestampMs: TimestampMs(sourceIndex, fps),
		Data:        data,
	}, nil
}

// TimestampMs converts a frame index to milliseconds. A non-positive fps yields 0.
func TimestampMs(frameIndex int, fps float64) int64 {
	if fps <= 0 {
		return 0
	}
	return int64(float64(frameIndex) * 1000 / fps)
}

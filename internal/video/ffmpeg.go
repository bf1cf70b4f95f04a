package video

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpeg decodes video through the ffprobe and ffmpeg binaries.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

// NewFFmpeg returns an FFmpeg opener. Empty paths resolve through PATH.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads stream metadata with ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Info, error) {
	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames,duration:format=duration",
		"-of", "json",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe failed: %s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (Info, error) {
	var p probeOutput
	if err := json.Unmarshal(out, &p); err != nil {
		return Info{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(p.Streams) == 0 {
		return Info{}, fmt.Errorf("no video stream")
	}
	s := p.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return Info{}, fmt.Errorf("invalid frame size %dx%d", s.Width, s.Height)
	}

	info := Info{Width: s.Width, Height: s.Height}
	info.FPS = parseRate(s.AvgFrameRate)
	if info.FPS <= 0 {
		info.FPS = parseRate(s.RFrameRate)
	}

	duration, _ := strconv.ParseFloat(s.Duration, 64)
	if duration <= 0 {
		duration, _ = strconv.ParseFloat(p.Format.Duration, 64)
	}
	if duration > 0 {
		info.DurationMs = int64(duration * 1000)
	}

	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		info.FrameCount = n
	} else if duration > 0 && info.FPS > 0 {
		info.FrameCount = int(math.Round(duration * info.FPS))
	}
	if info.DurationMs == 0 && info.FPS > 0 {
		info.DurationMs = TimestampMs(info.FrameCount, info.FPS)
	}
	return info, nil
}

// parseRate parses an ffprobe rational such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// Open probes path and returns a source that streams raw RGB frames from ffmpeg.
func (f *FFmpeg) Open(ctx context.Context, path string) (FrameSource, error) {
	info, err := f.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	src := &ffmpegSource{ctx: ctx, bin: f.FFmpegPath, path: path, info: info}
	if err := src.start(0); err != nil {
		return nil, err
	}
	return src, nil
}

type ffmpegSource struct {
	ctx  context.Context
	bin  string
	path string
	info Info

	cmd *exec.Cmd
	out io.ReadCloser
	rd  *bufio.Reader
	buf []byte
}

func (s *ffmpegSource) Info() Info {
	return s.info
}

func (s *ffmpegSource) start(frame int) error {
	s.stop()

	args := []string{"-v", "error"}
	if frame > 0 && s.info.FPS > 0 {
		args = append(args, "-ss", strconv.FormatFloat(float64(frame)/s.info.FPS, 'f', 6, 64))
	}
	args = append(args, "-i", s.path, "-f", "rawvideo", "-pix_fmt", "rgb24", "-")

	cmd := exec.CommandContext(s.ctx, s.bin, args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	s.cmd = cmd
	s.out = out
	s.rd = bufio.NewReaderSize(out, 1<<20)
	return nil
}

func (s *ffmpegSource) stop() {
	if s.cmd == nil {
		return
	}
	_ = s.out.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	s.cmd = nil
}

func (s *ffmpegSource) Next() (image.Image, error) {
	if s.cmd == nil {
		return nil, io.EOF
	}
	size := s.info.Width * s.info.Height * 3
	if len(s.buf) != size {
		s.buf = make([]byte, size)
	}
	if _, err := io.ReadFull(s.rd, s.buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return rgbToImage(s.buf, s.info.Width, s.info.Height), nil
}

func (s *ffmpegSource) Seek(frame int) error {
	if frame < 0 {
		return fmt.Errorf("invalid frame %d", frame)
	}
	return s.start(frame)
}

func (s *ffmpegSource) Close() error {
	s.stop()
	return nil
}

func rgbToImage(rgb []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i+2 < len(rgb); i, j = i+3, j+4 {
		img.Pix[j] = rgb[i]
		img.Pix[j+1] = rgb[i+1]
		img.Pix[j+2] = rgb[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

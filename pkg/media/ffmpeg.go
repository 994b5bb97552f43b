package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpeg shells out to ffmpeg and ffprobe. Encoder run time is bounded by
// ctx only; wall-clock limits belong to the process supervisor.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// Available reports whether both binaries resolve.
func (f *FFmpeg) Available() bool {
	if _, err := exec.LookPath(f.FFmpegPath); err != nil {
		return false
	}
	_, err := exec.LookPath(f.FFprobePath)
	return err == nil
}

func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, f.FFprobePath, ProbeArgs(path)...).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q", strings.TrimSpace(string(out)))
	}
	return d, nil
}

func (f *FFmpeg) Encode(ctx context.Context, input, output string, p Profile) error {
	cmd := exec.CommandContext(ctx, f.FFmpegPath, EncodeArgs(input, output, p)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		tail := stderr.String()
		if len(tail) > 500 {
			tail = tail[len(tail)-500:]
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(tail))
	}
	return nil
}

func ProbeArgs(path string) []string {
	return []string{"-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path}
}

// EncodeArgs builds a single-threaded H.264/AAC encode capped to the
// profile's height and bitrate.
func EncodeArgs(input, output string, p Profile) []string {
	return []string{
		"-y", "-nostdin", "-threads", "1", "-filter_threads", "1",
		"-i", input,
		"-vf", fmt.Sprintf("scale='min(1920,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease", p.MaxHeight),
		"-c:v", "libx264", "-preset", p.Preset,
		"-b:v", fmt.Sprintf("%dk", p.VideoKbps),
		"-maxrate", fmt.Sprintf("%dk", p.MaxRateKbps()),
		"-bufsize", fmt.Sprintf("%dk", p.BufSizeKbps()),
		"-c:a", "aac", "-b:a", fmt.Sprintf("%dk", p.AudioKbps),
		"-movflags", "+faststart", "-max_muxing_queue_size", "1024",
		output,
	}
}

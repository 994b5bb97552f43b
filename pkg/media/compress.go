package media

import (
	"context"
	"fmt"
	"os"

	apperrors "tgcord/internal/errors"
	"tgcord/pkg/constants"

	"github.com/alitto/pond/v2"
	"github.com/sirupsen/logrus"
)

const (
	defaultAudioKbps = 128
	videoFloorKbps   = 200
)

// audio bitrates tried, in order, when the video floor eats the budget
var audioSteps = []int{128, 96, 64}

// Profile is one rung of the compression ladder
type Profile struct {
	Name      string
	MaxHeight int
	VideoKbps int
	AudioKbps int
	Preset    string
}

// MaxRateKbps bounds the encoder's peak rate.
func (p Profile) MaxRateKbps() int {
	return p.VideoKbps * 110 / 100
}

// BufSizeKbps is the rate-control buffer, never below 300k.
func (p Profile) BufSizeKbps() int {
	return max(p.VideoKbps*150/100, 300)
}

// PlanProfiles derives the three ladder rungs from the size ceiling and the
// source duration. The whole budget is ceiling*8*0.95/duration; audio is
// reserved first and video gets the rest, never below 200 kbps.
func PlanProfiles(ceilingBytes int64, durationSec float64) ([]Profile, error) {
	if durationSec <= 0 {
		return nil, apperrors.New(apperrors.ErrCodeCompressionNoDuration, "source duration unknown")
	}

	totalKbps := float64(ceilingBytes) * 8 * constants.CompressionTargetPercent / 100 / durationSec / 1000

	audio := defaultAudioKbps
	video := int(totalKbps) - audio
	if video < videoFloorKbps {
		video = videoFloorKbps
		for _, step := range audioSteps {
			audio = step
			if totalKbps >= float64(videoFloorKbps+step) {
				break
			}
		}
	}

	scaled := func(pct int) int {
		return max(video*pct/100, videoFloorKbps)
	}

	return []Profile{
		{Name: "1080p", MaxHeight: 1080, VideoKbps: video, AudioKbps: audio, Preset: "veryfast"},
		{Name: "720p", MaxHeight: 720, VideoKbps: scaled(85), AudioKbps: max(audio, 96), Preset: "veryfast"},
		{Name: "540p", MaxHeight: 540, VideoKbps: scaled(75), AudioKbps: 64, Preset: "ultrafast"},
	}, nil
}

// Prober reads a media file's duration
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Encoder re-encodes input into output with a profile
type Encoder interface {
	Encode(ctx context.Context, input, output string, p Profile) error
}

// Compressed is a ladder result that fits the ceiling
type Compressed struct {
	Path    string
	Size    int64
	Profile Profile
}

// Ladder runs compressions on a small dedicated pool so encodes never block
// the relay's own workers
type Ladder struct {
	prober  Prober
	encoder Encoder
	pool    pond.ResultPool[*Compressed]
	logger  *logrus.Logger
}

func NewLadder(prober Prober, encoder Encoder, workers int, logger *logrus.Logger) *Ladder {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Ladder{
		prober:  prober,
		encoder: encoder,
		pool:    pond.NewResultPool[*Compressed](workers),
		logger:  logger,
	}
}

// Compress shrinks input below ceilingBytes. It fails with
// COMPRESSION_NO_DURATION when the source cannot be probed and with
// COMPRESSION_EXHAUSTED when no rung fits. The returned file never exceeds
// the ceiling.
func (l *Ladder) Compress(ctx context.Context, input string, ceilingBytes int64) (*Compressed, error) {
	task := l.pool.SubmitErr(func() (*Compressed, error) {
		return l.run(ctx, input, ceilingBytes)
	})
	return task.Wait()
}

// Stop waits for queued compressions to finish.
func (l *Ladder) Stop() {
	l.pool.StopAndWait()
}

func (l *Ladder) run(ctx context.Context, input string, ceilingBytes int64) (*Compressed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	duration, err := l.prober.Duration(ctx, input)
	if err != nil || duration <= 0 {
		if err == nil {
			err = fmt.Errorf("duration %.2f", duration)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeCompressionNoDuration, "cannot probe video duration")
	}

	profiles, err := PlanProfiles(ceilingBytes, duration)
	if err != nil {
		return nil, err
	}

	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		output := sibling(input, "_"+p.Name, ".mp4")
		_ = os.Remove(output)

		logger := l.logger.WithFields(logrus.Fields{
			"profile":    p.Name,
			"video_kbps": p.VideoKbps,
			"audio_kbps": p.AudioKbps,
		})

		if err := l.encoder.Encode(ctx, input, output, p); err != nil {
			logger.WithError(err).Warn("Encode attempt failed")
			_ = os.Remove(output)
			continue
		}

		info, err := os.Stat(output)
		if err != nil {
			logger.WithError(err).Warn("Encoder produced no output")
			continue
		}
		if info.Size() <= ceilingBytes {
			logger.WithField("size", HumanSize(info.Size())).Info("Video compressed under ceiling")
			return &Compressed{Path: output, Size: info.Size(), Profile: p}, nil
		}

		logger.WithField("size", HumanSize(info.Size())).Info("Encoded video still over ceiling")
		_ = os.Remove(output)
	}

	return nil, apperrors.New(apperrors.ErrCodeCompressionExhausted,
		fmt.Sprintf("no profile fits under %s", HumanSize(ceilingBytes)))
}

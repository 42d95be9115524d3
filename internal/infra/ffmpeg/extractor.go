package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
	"go.uber.org/zap"
)

const (
	scratchDirName = "video_processing"
	framesDirName  = "frames"
	audioDirName   = "audio"
)

// Extractor shells out to ffmpeg to grab single frames and short audio
// chunks. Output files land under <cacheDir>/video_processing/{frames,audio},
// created on first use.
type Extractor struct {
	cacheDir    string
	jpegQuality int
	sampleRate  int
	logger      *zap.Logger
}

func NewExtractor(cacheDir string, jpegQuality int, sampleRate int, logger *zap.Logger) *Extractor {
	return &Extractor{cacheDir: cacheDir, jpegQuality: jpegQuality, sampleRate: sampleRate, logger: logger}
}

func (e *Extractor) ExtractFrame(ctx context.Context, src entity.MediaSource, at float64) (*entity.Sample, error) {
	outPath, err := e.ensureScratchFile(framesDirName, frameFileName(at))
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", frameArgs(src, at, e.jpegQuality, outPath)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg error: %w, output: %s", err, string(output))
	}

	e.logger.Debug("frame extracted",
		zap.Float64("at", at),
		zap.String("path", outPath),
	)
	return entity.NewFrameSample(at, outPath), nil
}

func (e *Extractor) ExtractAudioChunk(ctx context.Context, src entity.MediaSource, at float64, duration float64) (*entity.Sample, error) {
	outPath, err := e.ensureScratchFile(audioDirName, chunkFileName(at))
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", audioChunkArgs(src, at, duration, e.sampleRate, outPath)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg error: %w, output: %s", err, string(output))
	}

	e.logger.Debug("audio chunk extracted",
		zap.Float64("at", at),
		zap.Float64("duration", duration),
		zap.String("path", outPath),
	)
	return entity.NewAudioChunkSample(at, duration, outPath), nil
}

// Duration probes a local media file with ffprobe and returns its length in
// seconds.
func (e *Extractor) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	durationStr := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}

func (e *Extractor) ensureScratchFile(subdir string, name string) (string, error) {
	dir := filepath.Join(e.cacheDir, scratchDirName, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return filepath.Join(dir, name), nil
}

// Samples are named by the whole second they were taken at.
func frameFileName(at float64) string {
	return fmt.Sprintf("frame_%d.jpg", int(math.Floor(at)))
}

func chunkFileName(at float64) string {
	return fmt.Sprintf("chunk_%d.wav", int(math.Floor(at)))
}

func frameArgs(src entity.MediaSource, at float64, jpegQuality int, outPath string) []string {
	var args []string
	if src.Kind == entity.SourceLive {
		args = append(args, "-f", "v4l2", "-i", src.VideoDevice)
	} else {
		args = append(args, "-ss", formatSeconds(at), "-i", src.Path)
	}
	return append(args,
		"-frames:v", "1",
		"-q:v", strconv.Itoa(jpegQuality),
		"-y",
		outPath,
	)
}

func audioChunkArgs(src entity.MediaSource, at float64, duration float64, sampleRate int, outPath string) []string {
	var args []string
	if src.Kind == entity.SourceLive {
		args = append(args, "-f", "alsa", "-i", src.AudioDevice)
	} else {
		args = append(args, "-ss", formatSeconds(at), "-i", src.Path)
	}
	return append(args,
		"-t", formatSeconds(duration),
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-y",
		outPath,
	)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

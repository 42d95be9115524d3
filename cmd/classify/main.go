package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/port"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/backend"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/config"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/device"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/ffmpeg"
	miniostorage "github.com/timnirmal/realtimecam-sampling-service/internal/infra/minio"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/source"
	"github.com/timnirmal/realtimecam-sampling-service/pkg/logger"
)

func main() {
	fileFlag := flag.String("file", "", "media file to classify: a local path, file://, or s3://bucket/key")
	kindFlag := flag.String("kind", "auto", "sample kind: frame, audio, or auto (by file extension)")
	flag.Parse()

	raw := *fileFlag
	if raw == "" {
		raw = flag.Arg(0)
	}
	if raw == "" {
		fmt.Fprintln(os.Stderr, `usage: classify [-kind frame|audio] <path | s3://bucket/key>`)
		os.Exit(2)
	}

	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var fetcher port.ObjectFetcher
	if cfg.MinIOEndpoint != "" {
		store, err := miniostorage.NewMediaStore(miniostorage.StoreConfig{
			Endpoint:      cfg.MinIOEndpoint,
			AccessKey:     cfg.MinIOAccessKey,
			SecretKey:     cfg.MinIOSecretKey,
			UseSSL:        cfg.MinIOUseSSL,
			DefaultBucket: cfg.MinIOMediaBucket,
		})
		fatalOnErr(err, "create minio media store")
		fetcher = store
	}

	extractor := ffmpeg.NewExtractor(cfg.CacheDir, cfg.FFmpegJPEGQuality, cfg.FFmpegAudioRate, log)
	gate := device.NewGate(cfg.VideoDevice, device.DefaultSoundDir, log)
	resolver := source.NewResolver(fetcher, gate, extractor, cfg.CacheDir, cfg.VideoDevice, cfg.AudioDevice, log)

	localPath, err := resolver.Localize(ctx, raw)
	exitOnErr(err)

	kind, err := pickKind(*kindFlag, localPath)
	exitOnErr(err)

	// The classifier owns and removes its input file after the upload attempt,
	// so it gets a staged copy, never the picked file in place.
	staged, err := stageCopy(cfg.CacheDir, localPath)
	exitOnErr(err)

	classifier := backend.NewClassifier(
		cfg.BackendBaseURL,
		backend.Endpoint{
			Path:        cfg.BackendImagePath,
			FileField:   cfg.BackendImageField,
			ContentType: "image/jpeg",
			LabelKeys:   cfg.BackendImageLabelKeys,
		},
		backend.Endpoint{
			Path:        cfg.BackendAudioPath,
			FileField:   cfg.BackendAudioField,
			ContentType: "audio/wav",
			LabelKeys:   cfg.BackendAudioLabelKeys,
		},
		cfg.BackendTimeout,
		log,
	)

	var sample *entity.Sample
	if kind == entity.SampleFrame {
		sample = entity.NewFrameSample(0, staged)
	} else {
		sample = entity.NewAudioChunkSample(0, cfg.AudioChunkSeconds, staged)
	}

	label, err := classifier.Classify(ctx, sample)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "classification failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(label)
}

func pickKind(flagValue, path string) (entity.SampleKind, error) {
	switch flagValue {
	case "frame":
		return entity.SampleFrame, nil
	case "audio":
		return entity.SampleAudioChunk, nil
	case "auto":
	default:
		return "", fmt.Errorf("unknown sample kind %q", flagValue)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return entity.SampleFrame, nil
	case ".wav", ".mp3", ".m4a", ".ogg", ".flac":
		return entity.SampleAudioChunk, nil
	default:
		return "", fmt.Errorf("cannot infer sample kind from %q, pass -kind frame or -kind audio", filepath.Base(path))
	}
}

func stageCopy(cacheDir, srcPath string) (string, error) {
	destDir := filepath.Join(cacheDir, "uploads")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}
	destPath := filepath.Join(destDir, filepath.Base(srcPath))

	in, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return "", fmt.Errorf("stage %s: %w", srcPath, err)
	}
	return destPath, nil
}

func exitOnErr(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}

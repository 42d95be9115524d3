package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/port"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/backend"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/config"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/device"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/ffmpeg"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/labelfeed"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/metrics"
	miniostorage "github.com/timnirmal/realtimecam-sampling-service/internal/infra/minio"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/postgres"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/rabbitmq"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/source"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/tracing"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/trigger"
	"github.com/timnirmal/realtimecam-sampling-service/internal/usecase"
	"github.com/timnirmal/realtimecam-sampling-service/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	sourceFlag := flag.String("source", "", `media source: file path, file://, s3://bucket/key, or "live"`)
	flag.Parse()

	raw := *sourceFlag
	if raw == "" {
		raw = flag.Arg(0)
	}
	if raw == "" {
		fmt.Fprintln(os.Stderr, `usage: sampler [-source] <path | s3://bucket/key | live>`)
		os.Exit(2)
	}

	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting realtimecam-sampling-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database (optional: persistence is disabled without DATABASE_URL)
	var repo port.ResultRepository
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		fatalOnErr(err, "connect to postgres")
		defer pool.Close()

		if err := postgres.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
			log.Warn("migration warning", zap.Error(err))
		}
		repo = postgres.NewResultRepository(pool)
	}

	// MinIO (optional: enables s3:// and minio:// sources)
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
		fatalOnErr(store.EnsureBucket(ctx, ""), "ensure media bucket")
		fetcher = store
	}

	// Label sinks: the in-process feed always, the broker when configured
	feed := labelfeed.NewHub(log)
	sinks := multiPublisher{feed}
	if cfg.RabbitMQURL != "" {
		rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
		fatalOnErr(err, "connect to rabbitmq")
		defer rmqConn.Close()

		pub, err := rabbitmq.NewLabelPublisher(rmqConn, cfg.RabbitMQExchange, cfg.RabbitMQRoutingKey, cfg.RabbitMQLabelQueue)
		fatalOnErr(err, "create rabbitmq label publisher")
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	// Infra adapters
	extractor := ffmpeg.NewExtractor(cfg.CacheDir, cfg.FFmpegJPEGQuality, cfg.FFmpegAudioRate, log)
	gate := device.NewGate(cfg.VideoDevice, device.DefaultSoundDir, log)
	resolver := source.NewResolver(fetcher, gate, extractor, cfg.CacheDir, cfg.VideoDevice, cfg.AudioDevice, log)
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

	// Metrics and label feed server
	srv := metrics.StartServer(ctx, cfg.MetricsPort, feed, log)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	src, err := resolver.Resolve(ctx, raw)
	fatalOnErr(err, "resolve media source")

	session := entity.NewSession(
		src.Describe(),
		pickPolicy(cfg.SamplingPolicy, src.Kind),
		entity.Intervals{Image: cfg.FrameIntervalSeconds, Audio: cfg.AudioIntervalSeconds},
	)
	feed.Reset(session.ID)

	var triggers port.TriggerSource
	if src.Kind == entity.SourceLive {
		triggers = trigger.NewIntervalTimers(
			secondsToDuration(cfg.FrameIntervalSeconds),
			secondsToDuration(cfg.AudioIntervalSeconds),
			log,
		)
	} else {
		triggers = trigger.NewPlaybackClock(src.Duration, cfg.ProgressTick, log)
	}

	runner := usecase.NewSessionRunner(session, extractor, classifier, sinks, repo, log,
		usecase.SessionRunnerConfig{
			ChunkSeconds: cfg.AudioChunkSeconds,
			DrainGrace:   cfg.DrainGrace,
		})

	log.Info("sampling session started",
		zap.String("session_id", session.ID.String()),
		zap.String("source", session.Source),
		zap.String("policy", string(session.Policy)))

	if err := runner.Run(ctx, src, triggers); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("session error", zap.Error(err))
	}

	for m, label := range session.Labels() {
		log.Info("final label", zap.String("modality", string(m)), zap.String("label", label))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Info("realtimecam-sampling-service stopped")
}

// multiPublisher fans each label event out to every configured sink.
type multiPublisher []port.LabelPublisher

func (m multiPublisher) PublishLabel(ctx context.Context, ev entity.LabelEvent) error {
	var firstErr error
	for _, p := range m {
		if err := p.PublishLabel(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// pickPolicy maps the configured policy onto the source kind: "auto" serializes
// file playback, where one ffmpeg process at a time keeps seeks cheap, and lets
// live capture sample both modalities independently.
func pickPolicy(configured string, kind entity.SourceKind) entity.Policy {
	switch configured {
	case string(entity.PolicySerialized):
		return entity.PolicySerialized
	case string(entity.PolicyIndependent):
		return entity.PolicyIndependent
	default:
		if kind == entity.SourceLive {
			return entity.PolicyIndependent
		}
		return entity.PolicySerialized
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/backend"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/ffmpeg"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/labelfeed"
	miniostorage "github.com/timnirmal/realtimecam-sampling-service/internal/infra/minio"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/postgres"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/rabbitmq"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/source"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/trigger"
	"github.com/timnirmal/realtimecam-sampling-service/internal/usecase"
	"github.com/timnirmal/realtimecam-sampling-service/pkg/logger"
	"go.uber.org/zap"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH", bin)
		}
	}
}

func fixturePath(t *testing.T) string {
	t.Helper()
	path := filepath.Join("..", "testdata", "test.mp4")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("test video not found at tests/testdata/test.mp4 - generate it with: " +
			"ffmpeg -f lavfi -i testsrc=duration=4:size=320x240:rate=25 " +
			"-f lavfi -i sine=frequency=440:duration=4 " +
			"-c:v libx264 -pix_fmt yuv420p -c:a aac -shortest tests/testdata/test.mp4")
	}
	return path
}

// classifierBackend fakes the prediction API the mobile clients talk to.
func classifierBackend(imageCalls, audioCalls *atomic.Int64) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/predict_image", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("image_file"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		imageCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"classification":"cat"}`))
	})
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("audio_file"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		audioCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"emotion":"happy"}`))
	})
	return httptest.NewServer(mux)
}

func newTestClassifier(baseURL string, log *zap.Logger) *backend.Classifier {
	return backend.NewClassifier(baseURL,
		backend.Endpoint{
			Path:        "/predict_image",
			FileField:   "image_file",
			ContentType: "image/jpeg",
			LabelKeys:   []string{"classification", "predicted_class"},
		},
		backend.Endpoint{
			Path:        "/predict",
			FileField:   "audio_file",
			ContentType: "audio/wav",
			LabelKeys:   []string{"classification", "emotion"},
		},
		30*time.Second, log)
}

func TestSamplingSessionEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	requireFFmpeg(t)
	videoPath := fixturePath(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Start PostgreSQL container
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("sampling"),
		tcpostgres.WithUsername("sampling_user"),
		tcpostgres.WithPassword("sampling_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Start RabbitMQ container
	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	// Start MinIO container
	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer minioContainer.Terminate(ctx)

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	// Run migrations
	err = postgres.RunMigrations(pgConnStr, "../../migrations")
	require.NoError(t, err)

	// Upload the fixture so the session pulls it through the media store
	store, err := miniostorage.NewMediaStore(miniostorage.StoreConfig{
		Endpoint:      minioEndpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		UseSSL:        false,
		DefaultBucket: "media",
	})
	require.NoError(t, err)
	require.NoError(t, store.EnsureBucket(ctx, ""))

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	_, err = minioClient.FPutObject(ctx, "media", "sessions/test.mp4", videoPath, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	// Classification backend
	var imageCalls, audioCalls atomic.Int64
	backendSrv := classifierBackend(&imageCalls, &audioCalls)
	defer backendSrv.Close()

	// Setup DB pool
	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	defer pool.Close()

	// RabbitMQ label publisher
	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	pub, err := rabbitmq.NewLabelPublisher(rmqConn, "realtimecam.labels", "label.events", "label.events")
	require.NoError(t, err)
	defer pub.Close()

	// Wire the pipeline
	log, _ := logger.New("debug")
	cacheDir := t.TempDir()
	repo := postgres.NewResultRepository(pool)
	extractor := ffmpeg.NewExtractor(cacheDir, 2, 16000, log)
	resolver := source.NewResolver(store, nil, extractor, cacheDir, "", "", log)
	classifier := newTestClassifier(backendSrv.URL, log)

	src, err := resolver.Resolve(ctx, "s3://media/sessions/test.mp4")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, src.Duration, 0.5)

	session := entity.NewSession(src.Describe(), entity.PolicyIndependent,
		entity.Intervals{Image: 1.0, Audio: 2.5})
	clock := trigger.NewPlaybackClock(src.Duration, 100*time.Millisecond, log)

	runner := usecase.NewSessionRunner(session, extractor, classifier, pub, repo, log,
		usecase.SessionRunnerConfig{
			ChunkSeconds: 2.5,
			DrainGrace:   10 * time.Second,
		})

	require.NoError(t, runner.Run(ctx, src, clock))

	// Labels reflect the backend's answers
	assert.Equal(t, "cat", session.Label(entity.ModalityImage))
	assert.Equal(t, "happy", session.Label(entity.ModalityAudio))
	assert.Greater(t, imageCalls.Load(), int64(0))
	assert.Greater(t, audioCalls.Load(), int64(0))

	// Every published label event carries the session and the right payload
	evCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer evCh.Close()

	deliveries, err := evCh.Consume("label.events", "", true, false, false, false, nil)
	require.NoError(t, err)

	var events []entity.LabelEvent
collect:
	for {
		select {
		case d := <-deliveries:
			var ev entity.LabelEvent
			require.NoError(t, json.Unmarshal(d.Body, &ev))
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			break collect
		}
	}

	var imageEvents, audioEvents int
	for _, ev := range events {
		assert.Equal(t, session.ID, ev.SessionID)
		switch ev.Modality {
		case entity.ModalityImage:
			imageEvents++
			assert.Equal(t, "cat", ev.Label)
			assert.GreaterOrEqual(t, ev.SampleTime, 1.0)
		case entity.ModalityAudio:
			audioEvents++
			assert.Equal(t, "happy", ev.Label)
			assert.Equal(t, 2.5, ev.Duration)
		}
	}
	assert.GreaterOrEqual(t, imageEvents, 2, "frames sampled at least at t=1 and t=2")
	assert.GreaterOrEqual(t, audioEvents, 1, "audio chunk sampled at t=2.5")

	// Classifications persisted per event
	records, err := repo.ListClassifications(ctx, session.ID)
	require.NoError(t, err)

	var imageRows, audioRows int
	for _, rec := range records {
		switch rec.Modality {
		case entity.ModalityImage:
			imageRows++
			assert.Equal(t, "cat", rec.Label)
		case entity.ModalityAudio:
			audioRows++
			assert.Equal(t, "happy", rec.Label)
			assert.Equal(t, 2.5, rec.Duration)
		}
	}
	assert.GreaterOrEqual(t, imageRows, 2)
	assert.GreaterOrEqual(t, audioRows, 1)

	// Session row is closed
	var policy string
	var endedAt *time.Time
	err = pool.QueryRow(ctx,
		"SELECT policy, ended_at FROM sampling_sessions WHERE id=$1", session.ID,
	).Scan(&policy, &endedAt)
	require.NoError(t, err)
	assert.Equal(t, "independent", policy)
	assert.NotNil(t, endedAt, "session should be closed after the run")

	// Uploaded samples are deleted from the scratch dir
	for _, sub := range []string{"frames", "audio"} {
		entries, err := os.ReadDir(filepath.Join(cacheDir, "video_processing", sub))
		if err == nil {
			assert.Empty(t, entries, "uploaded %s samples should be deleted", sub)
		}
	}

	t.Logf("Test passed: %d image events, %d audio events, %d rows", imageEvents, audioEvents, len(records))
}

func TestSamplingKeepsLabelsWhenBackendFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	requireFFmpeg(t)
	videoPath := fixturePath(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var hits atomic.Int64
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "model unavailable", http.StatusInternalServerError)
	}))
	defer backendSrv.Close()

	log, _ := logger.New("debug")
	cacheDir := t.TempDir()
	extractor := ffmpeg.NewExtractor(cacheDir, 2, 16000, log)
	resolver := source.NewResolver(nil, nil, extractor, cacheDir, "", "", log)
	classifier := newTestClassifier(backendSrv.URL, log)

	src, err := resolver.Resolve(ctx, videoPath)
	require.NoError(t, err)

	session := entity.NewSession(src.Describe(), entity.PolicySerialized,
		entity.Intervals{Image: 1.0, Audio: 2.5})
	feed := labelfeed.NewHub(log)
	feed.Reset(session.ID)
	clock := trigger.NewPlaybackClock(src.Duration, 100*time.Millisecond, log)

	runner := usecase.NewSessionRunner(session, extractor, classifier, feed, nil, log,
		usecase.SessionRunnerConfig{ChunkSeconds: 2.5})

	require.NoError(t, runner.Run(ctx, src, clock),
		"upload failures are logged, not surfaced")

	assert.Greater(t, hits.Load(), int64(0), "backend was reached")
	assert.Equal(t, entity.LabelNotProcessed, session.Label(entity.ModalityImage))
	assert.Equal(t, entity.LabelNotProcessed, session.Label(entity.ModalityAudio))

	snapshot := feed.Snapshot()
	assert.Equal(t, entity.LabelNotProcessed, snapshot[entity.ModalityImage].Label)
	assert.Equal(t, entity.LabelNotProcessed, snapshot[entity.ModalityAudio].Label)
}

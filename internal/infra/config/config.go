package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	BackendBaseURL        string        `env:"BACKEND_BASE_URL"         envDefault:"http://localhost:8000"`
	BackendImagePath      string        `env:"BACKEND_IMAGE_PATH"       envDefault:"/predict_image"`
	BackendAudioPath      string        `env:"BACKEND_AUDIO_PATH"       envDefault:"/predict"`
	BackendImageField     string        `env:"BACKEND_IMAGE_FIELD"      envDefault:"image_file"`
	BackendAudioField     string        `env:"BACKEND_AUDIO_FIELD"      envDefault:"audio_file"`
	BackendImageLabelKeys []string      `env:"BACKEND_IMAGE_LABEL_KEYS" envDefault:"classification,predicted_class"`
	BackendAudioLabelKeys []string      `env:"BACKEND_AUDIO_LABEL_KEYS" envDefault:"classification,emotion"`
	BackendTimeout        time.Duration `env:"BACKEND_TIMEOUT"          envDefault:"60s"`

	FrameIntervalSeconds float64       `env:"FRAME_INTERVAL_SECONDS" envDefault:"1.0"`
	AudioIntervalSeconds float64       `env:"AUDIO_INTERVAL_SECONDS" envDefault:"2.5"`
	AudioChunkSeconds    float64       `env:"AUDIO_CHUNK_SECONDS"    envDefault:"2.5"`
	ProgressTick         time.Duration `env:"PROGRESS_TICK"          envDefault:"250ms"`
	SamplingPolicy       string        `env:"SAMPLING_POLICY"        envDefault:"auto"`
	DrainGrace           time.Duration `env:"DRAIN_GRACE"            envDefault:"10s"`

	CacheDir          string `env:"CACHE_DIR"           envDefault:"/tmp/realtimecam"`
	FFmpegJPEGQuality int    `env:"FFMPEG_JPEG_QUALITY" envDefault:"2"`
	FFmpegAudioRate   int    `env:"FFMPEG_AUDIO_RATE"   envDefault:"16000"`
	VideoDevice       string `env:"VIDEO_DEVICE"        envDefault:"/dev/video0"`
	AudioDevice       string `env:"AUDIO_DEVICE"        envDefault:"default"`

	MinIOEndpoint    string `env:"MINIO_ENDPOINT"` // empty disables object-store sources
	MinIOAccessKey   string `env:"MINIO_ACCESS_KEY"   envDefault:"minioadmin"`
	MinIOSecretKey   string `env:"MINIO_SECRET_KEY"   envDefault:"minioadmin"`
	MinIOUseSSL      bool   `env:"MINIO_USE_SSL"      envDefault:"false"`
	MinIOMediaBucket string `env:"MINIO_MEDIA_BUCKET" envDefault:"media"`

	DatabaseURL string `env:"DATABASE_URL"` // empty disables persistence

	RabbitMQURL        string `env:"RABBITMQ_URL"` // empty disables broker publishing
	RabbitMQExchange   string `env:"RABBITMQ_EXCHANGE"    envDefault:"realtimecam.labels"`
	RabbitMQRoutingKey string `env:"RABBITMQ_ROUTING_KEY" envDefault:"label.events"`
	RabbitMQLabelQueue string `env:"RABBITMQ_LABEL_QUEUE" envDefault:"label.events"`

	MetricsPort    int    `env:"METRICS_PORT"    envDefault:"8083"`
	JaegerEndpoint string `env:"JAEGER_ENDPOINT" envDefault:"http://localhost:4318/v1/traces"`
	LogLevel       string `env:"LOG_LEVEL"       envDefault:"info"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

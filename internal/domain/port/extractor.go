package port

import (
	"context"

	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
)

type SampleExtractor interface {
	ExtractFrame(ctx context.Context, src entity.MediaSource, at float64) (*entity.Sample, error)
	ExtractAudioChunk(ctx context.Context, src entity.MediaSource, at float64, duration float64) (*entity.Sample, error)
}

type MediaProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

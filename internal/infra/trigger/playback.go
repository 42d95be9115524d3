package trigger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/port"
	"go.uber.org/zap"
)

// PlaybackClock replays a file source in real time. Every tick reports the
// playback position for both modalities, the frame track listed first so it
// is considered before audio on the same trigger. The clock stops by itself
// once the position reaches the source duration.
type PlaybackClock struct {
	duration float64
	tick     time.Duration
	logger   *zap.Logger
}

func NewPlaybackClock(duration float64, tick time.Duration, logger *zap.Logger) *PlaybackClock {
	return &PlaybackClock{duration: duration, tick: tick, logger: logger}
}

func (p *PlaybackClock) Start(ctx context.Context, fire port.TriggerFunc) error {
	if p.duration <= 0 {
		return fmt.Errorf("playback clock needs a positive duration, got %v", p.duration)
	}

	p.logger.Info("playback started",
		zap.Float64("duration_seconds", p.duration),
		zap.Duration("tick", p.tick),
	)

	start := time.Now()
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			elapsed := now.Sub(start).Seconds()
			fire(entity.Trigger{
				Time:       math.Min(elapsed, p.duration),
				Modalities: []entity.Modality{entity.ModalityImage, entity.ModalityAudio},
			})
			if elapsed >= p.duration {
				p.logger.Info("playback finished")
				return nil
			}
		}
	}
}

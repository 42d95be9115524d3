package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/port"
	"go.uber.org/zap"
)

// IntervalTimers drives live capture with one free-running ticker per
// modality. Each tick names only its own modality, so the two tracks are
// scheduled independently of each other. Trigger times are seconds since
// capture start.
type IntervalTimers struct {
	framePeriod time.Duration
	audioPeriod time.Duration
	logger      *zap.Logger
}

func NewIntervalTimers(framePeriod, audioPeriod time.Duration, logger *zap.Logger) *IntervalTimers {
	return &IntervalTimers{framePeriod: framePeriod, audioPeriod: audioPeriod, logger: logger}
}

func (s *IntervalTimers) Start(ctx context.Context, fire port.TriggerFunc) error {
	if s.framePeriod <= 0 || s.audioPeriod <= 0 {
		return fmt.Errorf("interval timers need positive periods, got frame=%v audio=%v", s.framePeriod, s.audioPeriod)
	}

	s.logger.Info("live capture timers started",
		zap.Duration("frame_period", s.framePeriod),
		zap.Duration("audio_period", s.audioPeriod),
	)

	start := time.Now()
	frame := time.NewTicker(s.framePeriod)
	defer frame.Stop()
	audio := time.NewTicker(s.audioPeriod)
	defer audio.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-frame.C:
			fire(entity.Trigger{
				Time:       now.Sub(start).Seconds(),
				Modalities: []entity.Modality{entity.ModalityImage},
			})
		case now := <-audio.C:
			fire(entity.Trigger{
				Time:       now.Sub(start).Seconds(),
				Modalities: []entity.Modality{entity.ModalityAudio},
			})
		}
	}
}

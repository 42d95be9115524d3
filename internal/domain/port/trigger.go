package port

import (
	"context"

	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
)

type TriggerFunc func(t entity.Trigger)

// TriggerSource emits timing signals until the source is exhausted or the
// context is cancelled. Start blocks for the lifetime of the source.
type TriggerSource interface {
	Start(ctx context.Context, fire TriggerFunc) error
}

package port

import (
	"context"

	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
)

type LabelPublisher interface {
	PublishLabel(ctx context.Context, ev entity.LabelEvent) error
}

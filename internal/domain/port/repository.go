package port

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
)

type ResultRepository interface {
	CreateSession(ctx context.Context, s *entity.Session) error
	CloseSession(ctx context.Context, id uuid.UUID, endedAt time.Time) error
	SaveClassification(ctx context.Context, rec *entity.ClassificationRecord) error
}

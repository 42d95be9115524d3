package port

import (
	"context"

	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
)

// Classifier uploads one sample to the classification backend and returns the
// predicted label. Implementations own the sample's backing file and remove
// it once the upload attempt finishes, success or failure.
type Classifier interface {
	Classify(ctx context.Context, sample *entity.Sample) (string, error)
}

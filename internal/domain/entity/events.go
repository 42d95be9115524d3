package entity

import (
	"time"

	"github.com/google/uuid"
)

// LabelEvent is the outbound message emitted every time a sample has been
// classified. It feeds the in-process label feed and, when configured, the
// message broker.
type LabelEvent struct {
	SessionID  uuid.UUID `json:"session_id"`
	Modality   Modality  `json:"modality"`
	Label      string    `json:"label"`
	SampleTime float64   `json:"sample_time_seconds"`
	Duration   float64   `json:"chunk_seconds,omitempty"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// ClassificationRecord is the persisted form of one classified sample.
type ClassificationRecord struct {
	ID         uuid.UUID
	SessionID  uuid.UUID
	Modality   Modality
	Label      string
	SampleTime float64
	Duration   float64
	CreatedAt  time.Time
}

func NewClassificationRecord(sessionID uuid.UUID, m Modality, label string, sampleTime, duration float64) *ClassificationRecord {
	return &ClassificationRecord{
		ID:         uuid.New(),
		SessionID:  sessionID,
		Modality:   m,
		Label:      label,
		SampleTime: sampleTime,
		Duration:   duration,
		CreatedAt:  time.Now().UTC(),
	}
}

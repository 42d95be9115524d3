package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
)

type ResultRepository struct {
	pool *pgxpool.Pool
}

func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

func (r *ResultRepository) CreateSession(ctx context.Context, s *entity.Session) error {
	query := `
		INSERT INTO sampling_sessions (id, source, policy, started_at)
		VALUES ($1,$2,$3,$4)`

	_, err := r.pool.Exec(ctx, query, s.ID, s.Source, string(s.Policy), s.StartedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *ResultRepository) CloseSession(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	query := `UPDATE sampling_sessions SET ended_at=$2 WHERE id=$1`

	_, err := r.pool.Exec(ctx, query, id, endedAt)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (r *ResultRepository) SaveClassification(ctx context.Context, rec *entity.ClassificationRecord) error {
	query := `
		INSERT INTO classifications (
			id, session_id, modality, label, sample_time, chunk_seconds, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.SessionID, string(rec.Modality), rec.Label,
		rec.SampleTime, rec.Duration, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert classification: %w", err)
	}
	return nil
}

func (r *ResultRepository) ListClassifications(ctx context.Context, sessionID uuid.UUID) ([]*entity.ClassificationRecord, error) {
	query := `
		SELECT id, session_id, modality, label, sample_time, chunk_seconds, created_at
		FROM classifications WHERE session_id=$1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list classifications: %w", err)
	}
	defer rows.Close()

	var records []*entity.ClassificationRecord
	for rows.Next() {
		rec := &entity.ClassificationRecord{}
		var modality string
		if err := rows.Scan(
			&rec.ID, &rec.SessionID, &modality, &rec.Label,
			&rec.SampleTime, &rec.Duration, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan classification: %w", err)
		}
		rec.Modality = entity.Modality(modality)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classifications: %w", err)
	}
	return records, nil
}

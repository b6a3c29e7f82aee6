package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/domain"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/platform/logger"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/store"
)

// PostgresRequestStore implements the store.RequestStore interface
// using a PostgreSQL database as the storage backend.
type PostgresRequestStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresRequestStore creates a new PostgreSQL implementation of
// the RequestStore interface. It accepts a database connection or
// transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresRequestStore(db store.DBTX, logger *slog.Logger) *PostgresRequestStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresRequestStore{
		db:     db,
		logger: logger.With(slog.String("component", "request_store")),
	}
}

// Ensure PostgresRequestStore implements store.RequestStore.
var _ store.RequestStore = (*PostgresRequestStore)(nil)

const requestColumns = `id, correlation_id, student_id, student_query, grade_level,
	interest, requested_modalities, preferred_modality, status, current_stage,
	retry_count, metadata, created_at, updated_at`

// Create implements store.RequestStore.Create.
// Returns store.ErrDuplicate if a request with the same ID or
// correlation ID already exists.
func (s *PostgresRequestStore) Create(ctx context.Context, req *domain.ContentRequest) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := req.Validate(); err != nil {
		log.Warn("request validation failed during create",
			slog.String("error", err.Error()),
			slog.String("request_id", req.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	modalities, err := json.Marshal(req.RequestedModalities)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	aux, err := domain.EncodeAux(req.Metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO content_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		req.ID,
		req.CorrelationID,
		req.StudentID,
		req.StudentQuery,
		req.GradeLevel,
		req.Interest,
		modalities,
		req.PreferredModality,
		req.Status,
		req.CurrentStage,
		req.RetryCount,
		aux,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		mapped := MapError(err)
		log.Error("failed to create content request",
			slog.String("error", err.Error()),
			slog.String("request_id", req.ID.String()))
		return mapped
	}

	log.Info("content request created",
		slog.String("request_id", req.ID.String()),
		slog.String("correlation_id", req.CorrelationID),
		slog.String("status", string(req.Status)))
	return nil
}

// Get implements store.RequestStore.Get.
// Returns store.ErrRequestNotFound if the request does not exist.
func (s *PostgresRequestStore) Get(ctx context.Context, id uuid.UUID) (*domain.ContentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM content_requests WHERE id = $1`
	return s.scanRequest(ctx, s.db.QueryRowContext(ctx, query, id))
}

// GetByCorrelationID implements store.RequestStore.GetByCorrelationID.
func (s *PostgresRequestStore) GetByCorrelationID(ctx context.Context, correlationID string) (*domain.ContentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM content_requests WHERE correlation_id = $1`
	return s.scanRequest(ctx, s.db.QueryRowContext(ctx, query, correlationID))
}

// UpdateStatus implements store.RequestStore.UpdateStatus. The guard
// clause restricts the update to rows whose current status may legally
// move to the target status, so an illegal or late write (including
// any write to a terminal request) is refused rather than applied.
func (s *PostgresRequestStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.RequestStatus,
	stage string,
	aux domain.RequestAux,
) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	auxJSON, err := domain.EncodeAux(aux)
	if err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	from := predecessorsOf(status)
	if len(from) == 0 {
		return false, fmt.Errorf("%w: no path to status %q", domain.ErrInvalidTransition, status)
	}

	query := `
		UPDATE content_requests
		SET status = $2, current_stage = $3, metadata = $4, updated_at = $5
		WHERE id = $1 AND status = ANY($6)
	`
	result, err := s.db.ExecContext(ctx, query, id, status, stage, auxJSON, time.Now().UTC(), statusStrings(from))
	if err != nil {
		log.Error("failed to update request status",
			slog.String("error", err.Error()),
			slog.String("request_id", id.String()),
			slog.String("status", string(status)))
		return false, MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, MapError(err)
	}
	if rows == 0 {
		log.Warn("status update refused",
			slog.String("request_id", id.String()),
			slog.String("target_status", string(status)),
			slog.String("stage", stage))
		return false, nil
	}

	log.Info("request status updated",
		slog.String("request_id", id.String()),
		slog.String("status", string(status)),
		slog.String("stage", stage))
	return true, nil
}

// IncrementRetry implements store.RequestStore.IncrementRetry. The
// counter only moves forward and terminal requests are left untouched.
func (s *PostgresRequestStore) IncrementRetry(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE content_requests
		SET retry_count = retry_count + 1, updated_at = $2
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
	`
	result, err := s.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, MapError(err)
	}
	return rows > 0, nil
}

// Cancel implements store.RequestStore.Cancel. Cancellation is legal
// from any non-terminal status; terminal rows are never modified.
func (s *PostgresRequestStore) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE content_requests
		SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
	`
	result, err := s.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, MapError(err)
	}
	if rows > 0 {
		log.Info("request cancelled", slog.String("request_id", id.String()))
	}
	return rows > 0, nil
}

// scanRequest reads one request row, decoding the JSON columns at the
// storage boundary.
func (s *PostgresRequestStore) scanRequest(ctx context.Context, row *sql.Row) (*domain.ContentRequest, error) {
	var req domain.ContentRequest
	var modalities, aux []byte

	err := row.Scan(
		&req.ID,
		&req.CorrelationID,
		&req.StudentID,
		&req.StudentQuery,
		&req.GradeLevel,
		&req.Interest,
		&modalities,
		&req.PreferredModality,
		&req.Status,
		&req.CurrentStage,
		&req.RetryCount,
		&aux,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrRequestNotFound
		}
		return nil, MapError(err)
	}

	if len(modalities) > 0 {
		if err := json.Unmarshal(modalities, &req.RequestedModalities); err != nil {
			return nil, fmt.Errorf("%w: requested_modalities: %v", store.ErrInvalidEntity, err)
		}
	}

	req.Metadata, err = domain.DecodeAux(aux)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", store.ErrInvalidEntity, err)
	}

	return &req, nil
}

// predecessorsOf returns every status from which the target status is
// reachable in one legal step.
func predecessorsOf(to domain.RequestStatus) []domain.RequestStatus {
	var from []domain.RequestStatus
	for _, s := range domain.AllStatuses() {
		if domain.CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

func statusStrings(statuses []domain.RequestStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

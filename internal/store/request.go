package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/domain"
)

// RequestStore defines the interface for content request persistence.
type RequestStore interface {
	// Get retrieves a request by its unique ID.
	// Returns ErrRequestNotFound if the request does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.ContentRequest, error)

	// GetByCorrelationID retrieves a request by its correlation ID,
	// which uniquely identifies one logical unit of work regardless of
	// how many times its message is delivered.
	// Returns ErrRequestNotFound if no such request exists.
	GetByCorrelationID(ctx context.Context, correlationID string) (*domain.ContentRequest, error)

	// Create saves a new request to the store. It handles domain
	// validation internally and returns ErrDuplicate if a request with
	// the same correlation ID already exists.
	Create(ctx context.Context, req *domain.ContentRequest) error

	// UpdateStatus moves a request to the given status and stage,
	// replacing its auxiliary metadata. The update is refused (false,
	// domain.ErrInvalidTransition) when the move does not follow the
	// lifecycle graph, including any write to a terminal request.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RequestStatus, stage string, aux domain.RequestAux) (bool, error)

	// IncrementRetry bumps the request's retry counter. The counter is
	// monotonically increasing; it is never reset.
	IncrementRetry(ctx context.Context, id uuid.UUID) (bool, error)

	// Cancel marks a request cancelled if it is not already terminal.
	// Returns false when the request was terminal and left untouched.
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
}

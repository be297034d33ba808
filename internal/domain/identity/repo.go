package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when a lookup has zero candidates.
var ErrNotFound = errors.New("patient not found")

// PatientRepository is the read side the matchers need, plus Create and
// GetByID for the upstream collaborators that register new patients.
//
// Single-row finders return the earliest-created row when several qualify.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	FindByExternalID(ctx context.Context, externalID string) (*Patient, error)
	// FindByEmail matches the stored email case-insensitively against an
	// already-normalized key.
	FindByEmail(ctx context.Context, emailKey string) (*Patient, error)
	// FindByPhoneSuffix returns every patient whose stored phone digits end
	// with the given last-10 key, ordered by created_at.
	FindByPhoneSuffix(ctx context.Context, phoneKey string) ([]*Patient, error)
	FindByCombinedName(ctx context.Context, nameKey string) (*Patient, error)
	FindByFirstLast(ctx context.Context, first, last string) (*Patient, error)

	// Snapshot reads the whole population ordered by created_at ascending.
	Snapshot(ctx context.Context) ([]*Patient, error)
}

package dedup

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/clinicops/identity/internal/domain/identity"
)

// ErrTableMissing is returned by Repoint when the dependent table or its
// column does not exist in this deployment. The executor skips such tables.
var ErrTableMissing = errors.New("dependent table or column missing")

// Store is the write side of a merge run.
type Store interface {
	// Snapshot reads all patients ordered by created_at ascending.
	Snapshot(ctx context.Context) ([]*identity.Patient, error)
	// Repoint moves every row of t referencing from to to and returns the
	// number of rows changed. Re-running it is harmless.
	Repoint(ctx context.Context, t DependentTable, from, to uuid.UUID) (int64, error)
	// ApplyBackfill writes changes onto patient id, leaving any field that is
	// already non-empty untouched.
	ApplyBackfill(ctx context.Context, id uuid.UUID, changes []FieldChange) error
	// DeletePatient removes one patient row. It returns identity.ErrNotFound
	// when the row is already gone.
	DeletePatient(ctx context.Context, id uuid.UUID) error
}

var backfillAllowed = func() map[string]bool {
	m := make(map[string]bool, len(backfillFields))
	for _, f := range backfillFields {
		m[f.column] = true
	}
	return m
}()

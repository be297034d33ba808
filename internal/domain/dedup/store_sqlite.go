package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/identity/internal/domain/identity"
	"github.com/clinicops/identity/internal/platform/db"
)

type storeSQLite struct {
	db       *sql.DB
	patients identity.PatientRepository
}

// NewStoreSQLite returns the merge store for the embedded database.
func NewStoreSQLite(sqlDB *sql.DB) Store {
	return &storeSQLite{db: sqlDB, patients: identity.NewPatientRepoSQLite(sqlDB)}
}

func (s *storeSQLite) Snapshot(ctx context.Context) ([]*identity.Patient, error) {
	return s.patients.Snapshot(ctx)
}

func (s *storeSQLite) Repoint(ctx context.Context, t DependentTable, from, to uuid.UUID) (int64, error) {
	table, err := db.QuoteIdent(t.Table)
	if err != nil {
		return 0, err
	}
	col, err := db.QuoteIdent(t.Column)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = ? WHERE %s = ?`, table, col, col), to.String(), from.String())
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column") {
			return 0, fmt.Errorf("%s: %w", t, ErrTableMissing)
		}
		return 0, fmt.Errorf("repoint %s: %w", t, err)
	}
	return res.RowsAffected()
}

func (s *storeSQLite) ApplyBackfill(ctx context.Context, id uuid.UUID, changes []FieldChange) error {
	if len(changes) == 0 {
		return nil
	}
	sets := make([]string, 0, len(changes)+1)
	args := make([]interface{}, 0, len(changes)+2)
	for _, ch := range changes {
		if !backfillAllowed[ch.Field] {
			return fmt.Errorf("backfill: unknown field %q", ch.Field)
		}
		sets = append(sets, fmt.Sprintf(`%[1]s = CASE WHEN %[1]s IS NULL OR trim(%[1]s) = '' THEN ? ELSE %[1]s END`, ch.Field))
		args = append(args, ch.Value)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano), id.String())

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE patients SET %s WHERE id = ?`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return fmt.Errorf("backfill patient %s: %w", id, err)
	}
	return nil
}

func (s *storeSQLite) DeletePatient(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM patients WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

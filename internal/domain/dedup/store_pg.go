package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/identity/internal/domain/identity"
	"github.com/clinicops/identity/internal/platform/db"
)

const (
	pgUndefinedTable  = "42P01"
	pgUndefinedColumn = "42703"
)

type storePG struct {
	pool     *pgxpool.Pool
	patients identity.PatientRepository
}

// NewStore returns the Postgres merge store.
func NewStore(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool, patients: identity.NewPatientRepo(pool)}
}

func (s *storePG) Snapshot(ctx context.Context) ([]*identity.Patient, error) {
	return s.patients.Snapshot(ctx)
}

func (s *storePG) Repoint(ctx context.Context, t DependentTable, from, to uuid.UUID) (int64, error) {
	table, err := db.QuoteIdent(t.Table)
	if err != nil {
		return 0, err
	}
	col, err := db.QuoteIdent(t.Column)
	if err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE %s = $2`, table, col, col), to, from)
	if err != nil {
		return 0, classifyPG(t, err)
	}
	return tag.RowsAffected(), nil
}

func classifyPG(t DependentTable, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgUndefinedTable || pgErr.Code == pgUndefinedColumn) {
		return fmt.Errorf("%s: %w", t, ErrTableMissing)
	}
	return fmt.Errorf("repoint %s: %w", t, err)
}

func (s *storePG) ApplyBackfill(ctx context.Context, id uuid.UUID, changes []FieldChange) error {
	if len(changes) == 0 {
		return nil
	}
	sets := make([]string, 0, len(changes)+1)
	args := make([]interface{}, 0, len(changes)+1)
	for _, ch := range changes {
		if !backfillAllowed[ch.Field] {
			return fmt.Errorf("backfill: unknown field %q", ch.Field)
		}
		args = append(args, nil)
		n := len(args)
		if ch.Field == "date_of_birth" {
			dob, err := time.Parse(dateLayout, ch.Value)
			if err != nil {
				return fmt.Errorf("backfill date_of_birth: %w", err)
			}
			args[n-1] = dob
			sets = append(sets, fmt.Sprintf(`date_of_birth = COALESCE(date_of_birth, $%d)`, n))
			continue
		}
		args[n-1] = ch.Value
		sets = append(sets, fmt.Sprintf(`%[1]s = CASE WHEN %[1]s IS NULL OR btrim(%[1]s) = '' THEN $%[2]d ELSE %[1]s END`, ch.Field, n))
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE patients SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return fmt.Errorf("backfill patient %s: %w", id, err)
	}
	return nil
}

func (s *storePG) DeletePatient(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrNotFound
	}
	return nil
}

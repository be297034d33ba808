package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLite has no regexp_replace and ASCII-only lower(), so this repository
// narrows candidates in SQL and applies the normalizer in Go.

type patientRepoSQLite struct {
	db *sql.DB
}

// NewPatientRepoSQLite returns a repository over an opened SQLite database
// (see db.OpenSQLite).
func NewPatientRepoSQLite(sqlDB *sql.DB) PatientRepository {
	return &patientRepoSQLite{db: sqlDB}
}

const (
	sqliteTimeLayout = time.RFC3339Nano
	sqliteDateLayout = "2006-01-02"
)

func (r *patientRepoSQLite) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO patients (`+patientCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID.String(), p.ExternalSystemID, p.Email, p.Phone, p.Name, p.FirstName, p.LastName,
		formatDate(p.DateOfBirth), p.Gender, p.Address, p.City, p.State, p.ZipCode,
		p.CreatedAt.UTC().Format(sqliteTimeLayout), p.UpdatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	return nil
}

func (r *patientRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+patientCols+` FROM patients WHERE id = ?`, id.String())
	p, err := scanPatientSQL(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *patientRepoSQLite) FindByExternalID(ctx context.Context, externalID string) (*Patient, error) {
	return first(r.where(ctx, `external_system_id = ?`, func(*Patient) bool { return true }, externalID))
}

func (r *patientRepoSQLite) FindByEmail(ctx context.Context, emailKey string) (*Patient, error) {
	return first(r.where(ctx, `email IS NOT NULL`, func(p *Patient) bool {
		return p.EmailKey() == emailKey
	}))
}

func (r *patientRepoSQLite) FindByPhoneSuffix(ctx context.Context, phoneKey string) ([]*Patient, error) {
	return r.where(ctx, `phone IS NOT NULL`, func(p *Patient) bool {
		key, ok := p.PhoneKey()
		return ok && key == phoneKey
	})
}

func (r *patientRepoSQLite) FindByCombinedName(ctx context.Context, nameKey string) (*Patient, error) {
	return first(r.where(ctx, `name IS NOT NULL`, func(p *Patient) bool {
		return FullNameKey(deref(p.Name)) == nameKey
	}))
}

func (r *patientRepoSQLite) FindByFirstLast(ctx context.Context, firstName, lastName string) (*Patient, error) {
	want := firstName + " " + lastName
	return first(r.where(ctx, `first_name IS NOT NULL AND last_name IS NOT NULL`, func(p *Patient) bool {
		return NameKey(deref(p.FirstName), deref(p.LastName)) == want
	}))
}

func (r *patientRepoSQLite) Snapshot(ctx context.Context) ([]*Patient, error) {
	patients, err := r.where(ctx, `1 = 1`, func(*Patient) bool { return true })
	if err != nil {
		return nil, fmt.Errorf("patient snapshot: %w", err)
	}
	return patients, nil
}

// where selects rows matching cond, keeps those accepted by keep, and
// returns them ordered by created_at then id.
func (r *patientRepoSQLite) where(ctx context.Context, cond string, keep func(*Patient) bool, args ...interface{}) ([]*Patient, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+patientCols+` FROM patients WHERE `+cond, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatientSQL(rows)
		if err != nil {
			return nil, err
		}
		if keep(p) {
			patients = append(patients, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortByCreated(patients)
	return patients, nil
}

func first(patients []*Patient, err error) (*Patient, error) {
	if err != nil {
		return nil, err
	}
	if len(patients) == 0 {
		return nil, ErrNotFound
	}
	return patients[0], nil
}

type sqlScanner interface {
	Scan(dest ...interface{}) error
}

func scanPatientSQL(row sqlScanner) (*Patient, error) {
	var (
		p                Patient
		dob              sql.NullString
		created, updated string
	)
	err := row.Scan(
		&p.ID, &p.ExternalSystemID, &p.Email, &p.Phone, &p.Name, &p.FirstName, &p.LastName,
		&dob, &p.Gender, &p.Address, &p.City, &p.State, &p.ZipCode, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	if dob.Valid && dob.String != "" {
		t, err := time.Parse(sqliteDateLayout, dob.String)
		if err != nil {
			return nil, fmt.Errorf("parse date_of_birth %q: %w", dob.String, err)
		}
		p.DateOfBirth = &t
	}
	if p.CreatedAt, err = time.Parse(sqliteTimeLayout, created); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	if p.UpdatedAt, err = time.Parse(sqliteTimeLayout, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", updated, err)
	}
	return &p, nil
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(sqliteDateLayout)
	return &s
}

package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/identity/internal/platform/db"
)

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, external_system_id, email, phone, name, first_name, last_name,
	date_of_birth, gender, address, city, state, zip_code, created_at, updated_at`

// pgSpaceClass matches exactly the runes unicode.IsSpace reports; btrim and
// \s stop at ASCII.
const pgSpaceClass = `[\u0009-\u000d\u0020\u0085\u00a0\u1680\u2000-\u200a\u2028-\u2029\u202f\u205f\u3000]`

// Normalization expressions mirror normalize.go. pgEmailExpr must stay
// identical to the idx_patients_email_key index expression.
const (
	pgEmailExpr = `lower(regexp_replace(email, '^` + pgSpaceClass + `+|` + pgSpaceClass + `+$', '', 'g'))`
	pgPhoneExpr = `regexp_replace(coalesce(phone, ''), '\D', '', 'g')`
	pgNameExpr  = `lower(regexp_replace(regexp_replace(%s, '^` + pgSpaceClass + `+|` + pgSpaceClass + `+$', '', 'g'), '` + pgSpaceClass + `+', ' ', 'g'))`
)

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (`+patientCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		p.ID, p.ExternalSystemID, p.Email, p.Phone, p.Name, p.FirstName, p.LastName,
		p.DateOfBirth, p.Gender, p.Address, p.City, p.State, p.ZipCode, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.one(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id)
}

func (r *patientRepoPG) FindByExternalID(ctx context.Context, externalID string) (*Patient, error) {
	return r.one(ctx, `SELECT `+patientCols+` FROM patients
		WHERE external_system_id = $1 ORDER BY created_at, id LIMIT 1`, externalID)
}

func (r *patientRepoPG) FindByEmail(ctx context.Context, emailKey string) (*Patient, error) {
	return r.one(ctx, `SELECT `+patientCols+` FROM patients
		WHERE `+pgEmailExpr+` = $1 ORDER BY created_at, id LIMIT 1`, emailKey)
}

func (r *patientRepoPG) FindByPhoneSuffix(ctx context.Context, phoneKey string) ([]*Patient, error) {
	return r.many(ctx, `SELECT `+patientCols+` FROM patients
		WHERE length(`+pgPhoneExpr+`) >= 10 AND right(`+pgPhoneExpr+`, 10) = $1
		ORDER BY created_at, id`, phoneKey)
}

func (r *patientRepoPG) FindByCombinedName(ctx context.Context, nameKey string) (*Patient, error) {
	return r.one(ctx, `SELECT `+patientCols+` FROM patients
		WHERE `+fmt.Sprintf(pgNameExpr, "name")+` = $1 ORDER BY created_at, id LIMIT 1`, nameKey)
}

func (r *patientRepoPG) FindByFirstLast(ctx context.Context, first, last string) (*Patient, error) {
	return r.one(ctx, `SELECT `+patientCols+` FROM patients
		WHERE `+fmt.Sprintf(pgNameExpr, "first_name")+` = $1
		  AND `+fmt.Sprintf(pgNameExpr, "last_name")+` = $2
		ORDER BY created_at, id LIMIT 1`, first, last)
}

func (r *patientRepoPG) Snapshot(ctx context.Context) ([]*Patient, error) {
	patients, err := r.many(ctx, `SELECT `+patientCols+` FROM patients ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("patient snapshot: %w", err)
	}
	return patients, nil
}

func (r *patientRepoPG) one(ctx context.Context, sql string, args ...interface{}) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *patientRepoPG) many(ctx context.Context, sql string, args ...interface{}) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.ExternalSystemID, &p.Email, &p.Phone, &p.Name, &p.FirstName, &p.LastName,
		&p.DateOfBirth, &p.Gender, &p.Address, &p.City, &p.State, &p.ZipCode, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

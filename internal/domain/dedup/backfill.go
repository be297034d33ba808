package dedup

import (
	"strings"

	"github.com/google/uuid"

	"github.com/clinicops/identity/internal/domain/identity"
)

const dateLayout = "2006-01-02"

// FieldChange is one backfill assignment: the canonical record's empty field
// Field receives Value, taken from duplicate SourceID.
type FieldChange struct {
	Field    string    `json:"field"`
	Value    string    `json:"value"`
	SourceID uuid.UUID `json:"source_id"`
}

type backfillField struct {
	column string
	value  func(*identity.Patient) string
}

func text(get func(*identity.Patient) *string) func(*identity.Patient) string {
	return func(p *identity.Patient) string {
		if s := get(p); s != nil {
			return strings.TrimSpace(*s)
		}
		return ""
	}
}

// backfillFields lists the patient columns copied onto the canonical record
// when it lacks them, in the order they are reported.
var backfillFields = []backfillField{
	{"external_system_id", text(func(p *identity.Patient) *string { return p.ExternalSystemID })},
	{"email", text(func(p *identity.Patient) *string { return p.Email })},
	{"phone", text(func(p *identity.Patient) *string { return p.Phone })},
	{"name", text(func(p *identity.Patient) *string { return p.Name })},
	{"first_name", text(func(p *identity.Patient) *string { return p.FirstName })},
	{"last_name", text(func(p *identity.Patient) *string { return p.LastName })},
	{"date_of_birth", func(p *identity.Patient) string {
		if p.DateOfBirth == nil {
			return ""
		}
		return p.DateOfBirth.Format(dateLayout)
	}},
	{"gender", text(func(p *identity.Patient) *string { return p.Gender })},
	{"address", text(func(p *identity.Patient) *string { return p.Address })},
	{"city", text(func(p *identity.Patient) *string { return p.City })},
	{"state", text(func(p *identity.Patient) *string { return p.State })},
	{"zip_code", text(func(p *identity.Patient) *string { return p.ZipCode })},
}

// BackfillColumns returns the names of the columns eligible for backfill.
func BackfillColumns() []string {
	cols := make([]string, len(backfillFields))
	for i, f := range backfillFields {
		cols[i] = f.column
	}
	return cols
}

// PlanBackfill returns, for every field empty on canonical, the first
// non-empty value among duplicates (which must be in creation order). Fields
// the canonical record already has are never touched.
func PlanBackfill(canonical *identity.Patient, duplicates []*identity.Patient) []FieldChange {
	var changes []FieldChange
	for _, f := range backfillFields {
		if f.value(canonical) != "" {
			continue
		}
		for _, d := range duplicates {
			if v := f.value(d); v != "" {
				changes = append(changes, FieldChange{Field: f.column, Value: v, SourceID: d.ID})
				break
			}
		}
	}
	return changes
}

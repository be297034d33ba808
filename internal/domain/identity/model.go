package identity

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patients table. Contact fields are stored as entered;
// comparison keys are derived on read by the normalizer.
type Patient struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	ExternalSystemID *string    `db:"external_system_id" json:"external_system_id,omitempty"`
	Email            *string    `db:"email" json:"email,omitempty"`
	Phone            *string    `db:"phone" json:"phone,omitempty"`
	Name             *string    `db:"name" json:"name,omitempty"`
	FirstName        *string    `db:"first_name" json:"first_name,omitempty"`
	LastName         *string    `db:"last_name" json:"last_name,omitempty"`
	DateOfBirth      *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender           *string    `db:"gender" json:"gender,omitempty"`
	Address          *string    `db:"address" json:"address,omitempty"`
	City             *string    `db:"city" json:"city,omitempty"`
	State            *string    `db:"state" json:"state,omitempty"`
	ZipCode          *string    `db:"zip_code" json:"zip_code,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// DisplayName returns the combined name, falling back to first + last.
func (p *Patient) DisplayName() string {
	if n := strings.TrimSpace(deref(p.Name)); n != "" {
		return n
	}
	return strings.TrimSpace(deref(p.FirstName) + " " + deref(p.LastName))
}

// EmailKey is the normalized email, or "" when absent.
func (p *Patient) EmailKey() string {
	return NormalizeEmail(deref(p.Email))
}

// PhoneKey is the last-10-digit phone key.
func (p *Patient) PhoneKey() (string, bool) {
	return PhoneKey(deref(p.Phone))
}

// NameKeys returns the comparison keys for the combined name column and the
// first/last columns. Either may be empty.
func (p *Patient) NameKeys() (full, split string) {
	return FullNameKey(deref(p.Name)), NameKey(deref(p.FirstName), deref(p.LastName))
}

// Before orders patients by creation time, then id, so that canonical
// selection does not depend on input order.
func (p *Patient) Before(o *Patient) bool {
	if !p.CreatedAt.Equal(o.CreatedAt) {
		return p.CreatedAt.Before(o.CreatedAt)
	}
	return p.ID.String() < o.ID.String()
}

// SortByCreated orders patients oldest first.
func SortByCreated(patients []*Patient) {
	sort.SliceStable(patients, func(i, j int) bool { return patients[i].Before(patients[j]) })
}

// Identifiers is the partial identity bag that arrives with an inbound event
// (form submission, CRM webhook, import row). Every field is optional.
type Identifiers struct {
	ExternalID string `json:"external_id,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
}

// Strategy names the cascade step that produced a match.
type Strategy string

const (
	MatchedByExternalID Strategy = "external_id"
	MatchedByEmail      Strategy = "email"
	MatchedByPhone      Strategy = "phone"
	MatchedByName       Strategy = "name"
)

// PatientRef is the resolved identity handed back to callers.
type PatientRef struct {
	ID               uuid.UUID `json:"id"`
	ExternalSystemID *string   `json:"external_system_id,omitempty"`
	MatchedBy        Strategy  `json:"matched_by"`
}

func refOf(p *Patient, by Strategy) *PatientRef {
	return &PatientRef{ID: p.ID, ExternalSystemID: p.ExternalSystemID, MatchedBy: by}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package dedup

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/identity/internal/domain/identity"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func strp(s string) *string { return &s }

// patient builds a record created minutes after epoch.
func patient(minutes int, email, phone string) *identity.Patient {
	p := &identity.Patient{ID: uuid.New(), CreatedAt: epoch.Add(time.Duration(minutes) * time.Minute)}
	if email != "" {
		p.Email = strp(email)
	}
	if phone != "" {
		p.Phone = strp(phone)
	}
	p.UpdatedAt = p.CreatedAt
	return p
}

func ids(ps ...*identity.Patient) []uuid.UUID {
	out := make([]uuid.UUID, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

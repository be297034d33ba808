package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNoIdentifiers is returned when a create request carries no field the
// matchers could ever use to find the patient again.
var ErrNoIdentifiers = errors.New("at least one of external_system_id, email, phone or name is required")

type Service struct {
	patients PatientRepository
	matcher  *Matcher
}

func NewService(patients PatientRepository, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		matcher:  NewMatcher(patients, logger.With().Str("component", "matcher").Logger()),
	}
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if deref(p.ExternalSystemID) == "" && p.EmailKey() == "" && deref(p.Phone) == "" &&
		p.DisplayName() == "" {
		return ErrNoIdentifiers
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// -- Matching --

// MatchPatient resolves one identifier bag with the store-backed cascade.
func (s *Service) MatchPatient(ctx context.Context, ids Identifiers) (*PatientRef, error) {
	return s.matcher.Match(ctx, ids)
}

// ResolveBatch resolves many identifier bags against a single fresh snapshot.
func (s *Service) ResolveBatch(ctx context.Context, batch []Identifiers) ([]*PatientRef, error) {
	patients, err := s.patients.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve batch: %w", err)
	}
	return BuildLookupIndex(patients).ResolveAll(batch), nil
}

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Matcher resolves an inbound identifier bag to one existing patient using a
// fixed cascade: external id, email, phone, full name. The first strategy that
// hits wins; lower-priority strategies are not consulted. Matcher never writes.
type Matcher struct {
	repo   PatientRepository
	logger zerolog.Logger
}

func NewMatcher(repo PatientRepository, logger zerolog.Logger) *Matcher {
	return &Matcher{repo: repo, logger: logger}
}

// Match returns nil, nil when no strategy finds a patient. Errors are only
// returned for store failures.
func (m *Matcher) Match(ctx context.Context, ids Identifiers) (*PatientRef, error) {
	if ext := strings.TrimSpace(ids.ExternalID); ext != "" {
		p, err := hit(m.repo.FindByExternalID(ctx, ext))
		if err != nil {
			return nil, fmt.Errorf("match by external id: %w", err)
		}
		if p != nil {
			return refOf(p, MatchedByExternalID), nil
		}
	}

	if email := NormalizeEmail(ids.Email); email != "" {
		p, err := hit(m.repo.FindByEmail(ctx, email))
		if err != nil {
			return nil, fmt.Errorf("match by email: %w", err)
		}
		if p != nil {
			return refOf(p, MatchedByEmail), nil
		}
	}

	if key, ok := PhoneKey(ids.Phone); ok {
		candidates, err := m.repo.FindByPhoneSuffix(ctx, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("match by phone: %w", err)
		}
		if p := m.pickPhone(PhoneDigits(ids.Phone), key, candidates); p != nil {
			return refOf(p, MatchedByPhone), nil
		}
	}

	if full := NameKey(ids.FirstName, ids.LastName); full != "" {
		p, err := hit(m.repo.FindByCombinedName(ctx, full))
		if err != nil {
			return nil, fmt.Errorf("match by name: %w", err)
		}
		if p == nil {
			first, last := FullNameKey(ids.FirstName), FullNameKey(ids.LastName)
			if p, err = hit(m.repo.FindByFirstLast(ctx, first, last)); err != nil {
				return nil, fmt.Errorf("match by first/last name: %w", err)
			}
		}
		if p != nil {
			return refOf(p, MatchedByName), nil
		}
	}

	return nil, nil
}

// pickPhone chooses among candidates sharing the last-10 key. A candidate
// whose full digit string equals the incoming one wins; otherwise the first
// (oldest) candidate is taken and the ambiguity is logged for audit.
func (m *Matcher) pickPhone(digits, key string, candidates []*Patient) *Patient {
	var matching []*Patient
	for _, c := range candidates {
		if k, ok := c.PhoneKey(); ok && k == key {
			matching = append(matching, c)
		}
	}
	switch len(matching) {
	case 0:
		return nil
	case 1:
		return matching[0]
	}

	for _, c := range matching {
		if PhoneDigits(deref(c.Phone)) == digits {
			return c
		}
	}

	ids := make([]string, len(matching))
	for i, c := range matching {
		ids[i] = c.ID.String()
	}
	m.logger.Warn().
		Str("phone_key", key).
		Strs("candidate_ids", ids).
		Str("chosen_id", ids[0]).
		Msg("ambiguous phone match")
	return matching[0]
}

// hit folds ErrNotFound into a nil patient.
func hit(p *Patient, err error) (*Patient, error) {
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return p, err
}

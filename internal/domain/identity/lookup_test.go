package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(patients ...Patient) []*Patient {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*Patient, len(patients))
	for i := range patients {
		p := patients[i]
		p.ID = uuid.New()
		p.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		out[i] = &p
	}
	return out
}

func TestLookupIndex_Cascade(t *testing.T) {
	ps := snapshot(
		Patient{ExternalSystemID: strp("ext-9"), Email: strp("one@x.com")},
		Patient{Email: strp("Two@X.com"), Phone: strp("555 000 1111")},
		Patient{Name: strp("Lee  Park")},
		Patient{FirstName: strp("Ana"), LastName: strp("Ruiz")},
	)
	idx := BuildLookupIndex(ps)
	require.Equal(t, 4, idx.Len())

	ref := idx.Match(Identifiers{ExternalID: "ext-9", Email: "two@x.com"})
	require.NotNil(t, ref)
	assert.Equal(t, ps[0].ID, ref.ID)
	assert.Equal(t, MatchedByExternalID, ref.MatchedBy)

	ref = idx.Match(Identifiers{ExternalID: "nope", Email: " TWO@x.com"})
	require.NotNil(t, ref)
	assert.Equal(t, ps[1].ID, ref.ID)
	assert.Equal(t, MatchedByEmail, ref.MatchedBy)

	ref = idx.Match(Identifiers{Phone: "+1 (555) 000-1111"})
	require.NotNil(t, ref)
	assert.Equal(t, ps[1].ID, ref.ID)
	assert.Equal(t, MatchedByPhone, ref.MatchedBy)

	ref = idx.Match(Identifiers{FirstName: "lee", LastName: "PARK"})
	require.NotNil(t, ref)
	assert.Equal(t, ps[2].ID, ref.ID)

	ref = idx.Match(Identifiers{FirstName: "Ana", LastName: "Ruiz"})
	require.NotNil(t, ref)
	assert.Equal(t, ps[3].ID, ref.ID)
	assert.Equal(t, MatchedByName, ref.MatchedBy)

	assert.Nil(t, idx.Match(Identifiers{Email: "unknown@x.com"}))
}

func TestLookupIndex_OldestOwnsSharedKey(t *testing.T) {
	ps := snapshot(
		Patient{Email: strp("shared@x.com")},
		Patient{Email: strp("SHARED@x.com")},
	)
	ref := BuildLookupIndex(ps).Match(Identifiers{Email: "shared@x.com"})
	require.NotNil(t, ref)
	assert.Equal(t, ps[0].ID, ref.ID)
}

func TestLookupIndex_FullDigitsBeforeSuffix(t *testing.T) {
	ps := snapshot(
		Patient{Phone: strp("5551234567")},
		Patient{Phone: strp("+44 555 123 4567")},
	)
	idx := BuildLookupIndex(ps)

	ref := idx.Match(Identifiers{Phone: "44 5551234567"})
	require.NotNil(t, ref)
	assert.Equal(t, ps[1].ID, ref.ID)

	ref = idx.Match(Identifiers{Phone: "1 555 123 4567"})
	require.NotNil(t, ref)
	assert.Equal(t, ps[0].ID, ref.ID)
}

func TestLookupIndex_AgreesWithMatcher(t *testing.T) {
	repo := newMockPatientRepo()
	repo.add(Patient{ExternalSystemID: strp("ext-1")})
	repo.add(Patient{Email: strp("e@x.com"), Phone: strp("555-222-3333")})
	repo.add(Patient{FirstName: strp("Kim"), LastName: strp("Ode")})
	repo.add(Patient{Phone: strp("+1 949 555 1234")})
	repo.add(Patient{Phone: strp("9495551234")})
	repo.add(Patient{Name: strp("J. Doe"), FirstName: strp("Jane"), LastName: strp("Doe")})
	all, err := repo.Snapshot(context.Background())
	require.NoError(t, err)

	idx := BuildLookupIndex(all)
	m := NewMatcher(repo, zerolog.Nop())
	for _, ids := range []Identifiers{
		{ExternalID: "ext-1"},
		{Email: "E@X.COM"},
		{Phone: "5552223333"},
		{FirstName: "kim", LastName: "ode"},
		{Phone: "949-555-1234"},
		{Phone: "1 949 555 1234"},
		{FirstName: "Jane", LastName: "Doe"},
		{Email: "missing@x.com"},
	} {
		want, err := m.Match(context.Background(), ids)
		require.NoError(t, err)
		assert.Equal(t, want, idx.Match(ids), "%+v", ids)
	}
}

func TestLookupIndex_ExactDigitsBeatOlderSuffixOwner(t *testing.T) {
	repo := newMockPatientRepo()
	repo.add(Patient{Phone: strp("+1 949 555 1234")})
	exact := repo.add(Patient{Phone: strp("9495551234")})
	all, err := repo.Snapshot(context.Background())
	require.NoError(t, err)

	ids := Identifiers{Phone: "949-555-1234"}
	want, err := NewMatcher(repo, zerolog.Nop()).Match(context.Background(), ids)
	require.NoError(t, err)
	require.NotNil(t, want)
	assert.Equal(t, exact.ID, want.ID)
	assert.Equal(t, want, BuildLookupIndex(all).Match(ids))
}

func TestLookupIndex_FirstLastWhenCombinedNameDiffers(t *testing.T) {
	repo := newMockPatientRepo()
	p := repo.add(Patient{Name: strp("J. Doe"), FirstName: strp("Jane"), LastName: strp("Doe")})
	all, err := repo.Snapshot(context.Background())
	require.NoError(t, err)
	idx := BuildLookupIndex(all)
	m := NewMatcher(repo, zerolog.Nop())

	for _, ids := range []Identifiers{
		{FirstName: "Jane", LastName: "Doe"},
		{FirstName: "J.", LastName: "Doe"},
	} {
		want, err := m.Match(context.Background(), ids)
		require.NoError(t, err)
		require.NotNil(t, want, "%+v", ids)
		assert.Equal(t, p.ID, want.ID)
		assert.Equal(t, want, idx.Match(ids), "%+v", ids)
	}
}

func TestLookupIndex_CombinedNameBeforeFirstLast(t *testing.T) {
	ps := snapshot(
		Patient{FirstName: strp("Sam"), LastName: strp("Hill")},
		Patient{Name: strp("Sam Hill")},
	)
	ref := BuildLookupIndex(ps).Match(Identifiers{FirstName: "sam", LastName: "hill"})
	require.NotNil(t, ref)
	assert.Equal(t, ps[1].ID, ref.ID)
}

func TestLookupIndex_ResolveAll(t *testing.T) {
	ps := snapshot(Patient{Email: strp("a@x.com")})
	refs := BuildLookupIndex(ps).ResolveAll([]Identifiers{{Email: "b@x.com"}, {Email: "a@x.com"}})
	require.Len(t, refs, 2)
	assert.Nil(t, refs[0])
	require.NotNil(t, refs[1])
	assert.Equal(t, ps[0].ID, refs[1].ID)
}

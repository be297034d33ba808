package identity

import "strings"

// LookupIndex is an in-memory snapshot of the population keyed by every
// identifier the cascade uses. It is built once per batch and is read-only
// afterwards, so it can be shared by concurrent callers.
type LookupIndex struct {
	byExternalID  map[string]*Patient
	byEmail       map[string]*Patient
	byPhoneDigits map[string]*Patient
	byPhoneKey    map[string]*Patient
	byName        map[string]*Patient
	byFirstLast   map[string]*Patient
	size          int
}

// BuildLookupIndex indexes patients. When two patients share a key, the one
// inserted first keeps it; pass the snapshot ordered by created_at so that the
// oldest record owns shared keys.
func BuildLookupIndex(patients []*Patient) *LookupIndex {
	idx := &LookupIndex{
		byExternalID:  make(map[string]*Patient, len(patients)),
		byEmail:       make(map[string]*Patient, len(patients)),
		byPhoneDigits: make(map[string]*Patient, len(patients)),
		byPhoneKey:    make(map[string]*Patient, len(patients)),
		byName:        make(map[string]*Patient, len(patients)),
		byFirstLast:   make(map[string]*Patient, len(patients)),
		size:          len(patients),
	}
	for _, p := range patients {
		put(idx.byExternalID, strings.TrimSpace(deref(p.ExternalSystemID)), p)
		put(idx.byEmail, p.EmailKey(), p)
		if key, ok := p.PhoneKey(); ok {
			put(idx.byPhoneDigits, PhoneDigits(deref(p.Phone)), p)
			put(idx.byPhoneKey, key, p)
		}
		full, split := p.NameKeys()
		put(idx.byName, full, p)
		put(idx.byFirstLast, split, p)
	}
	return idx
}

func put(m map[string]*Patient, key string, p *Patient) {
	if key == "" {
		return
	}
	if _, taken := m[key]; !taken {
		m[key] = p
	}
}

// Len reports how many patients the index was built from.
func (idx *LookupIndex) Len() int { return idx.size }

// Match runs the priority cascade against the index. It returns nil when no
// key hits.
func (idx *LookupIndex) Match(ids Identifiers) *PatientRef {
	if ext := strings.TrimSpace(ids.ExternalID); ext != "" {
		if p, ok := idx.byExternalID[ext]; ok {
			return refOf(p, MatchedByExternalID)
		}
	}
	if email := NormalizeEmail(ids.Email); email != "" {
		if p, ok := idx.byEmail[email]; ok {
			return refOf(p, MatchedByEmail)
		}
	}
	if key, ok := PhoneKey(ids.Phone); ok {
		// An exact full-digit owner beats an older record that only shares
		// the last-10 key.
		if p, ok := idx.byPhoneDigits[PhoneDigits(ids.Phone)]; ok {
			return refOf(p, MatchedByPhone)
		}
		if p, ok := idx.byPhoneKey[key]; ok {
			return refOf(p, MatchedByPhone)
		}
	}
	if name := NameKey(ids.FirstName, ids.LastName); name != "" {
		if p, ok := idx.byName[name]; ok {
			return refOf(p, MatchedByName)
		}
		if p, ok := idx.byFirstLast[name]; ok {
			return refOf(p, MatchedByName)
		}
	}
	return nil
}

// ResolveAll matches each entry of batch. The result is parallel to batch,
// with nil for entries that matched nothing.
func (idx *LookupIndex) ResolveAll(batch []Identifiers) []*PatientRef {
	out := make([]*PatientRef, len(batch))
	for i, ids := range batch {
		out[i] = idx.Match(ids)
	}
	return out
}

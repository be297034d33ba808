package dedup

import (
	"github.com/google/uuid"

	"github.com/clinicops/identity/internal/domain/identity"
)

// Reason describes which shared identifiers tied a cluster together.
type Reason string

const (
	ReasonEmail         Reason = "email"
	ReasonPhone         Reason = "phone"
	ReasonEmailAndPhone Reason = "email and phone"
	ReasonChain         Reason = "email, then phone chain"
)

// Cluster is a group of two or more patient records judged to be the same
// person. Members are in creation order; Members[0] is the canonical record.
type Cluster struct {
	CanonicalID  uuid.UUID           `json:"canonical_id"`
	Members      []*identity.Patient `json:"-"`
	DuplicateIDs []uuid.UUID         `json:"duplicate_ids"`
	Reason       Reason              `json:"reason"`
	Emails       []string            `json:"emails"`
	Phones       []string            `json:"phones"`
}

func (c Cluster) Canonical() *identity.Patient { return c.Members[0] }

func (c Cluster) Duplicates() []*identity.Patient { return c.Members[1:] }

// Partition splits patients into groups connected by a shared email key or a
// shared phone key. Every input patient lands in exactly one group, singletons
// included. Groups are ordered by their oldest member and members by
// creation time, so the output does not depend on input order. Repeated ids
// are kept once.
func Partition(patients []*identity.Patient) [][]*identity.Patient {
	sorted := make([]*identity.Patient, 0, len(patients))
	seen := make(map[uuid.UUID]bool, len(patients))
	for _, p := range patients {
		if p == nil || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		sorted = append(sorted, p)
	}
	identity.SortByCreated(sorted)

	ds := NewDisjointSet()
	byEmail := make(map[string]uuid.UUID)
	byPhone := make(map[string]uuid.UUID)
	for _, p := range sorted {
		ds.Add(p.ID)
		if key := p.EmailKey(); key != "" {
			link(ds, byEmail, key, p.ID)
		}
		if key, ok := p.PhoneKey(); ok {
			link(ds, byPhone, key, p.ID)
		}
	}

	var groups [][]*identity.Patient
	index := make(map[uuid.UUID]int)
	for _, p := range sorted {
		root := ds.Find(p.ID)
		i, ok := index[root]
		if !ok {
			i = len(groups)
			index[root] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], p)
	}
	return groups
}

func link(ds *DisjointSet, owners map[string]uuid.UUID, key string, id uuid.UUID) {
	if owner, ok := owners[key]; ok {
		ds.Union(owner, id)
		return
	}
	owners[key] = id
}

// FindClusters returns the groups of Partition that have more than one
// member, ordered by the canonical record's creation time.
func FindClusters(patients []*identity.Patient) []Cluster {
	var clusters []Cluster
	for _, members := range Partition(patients) {
		if len(members) < 2 {
			continue
		}
		clusters = append(clusters, newCluster(members))
	}
	return clusters
}

func newCluster(members []*identity.Patient) Cluster {
	c := Cluster{
		CanonicalID:  members[0].ID,
		Members:      members,
		DuplicateIDs: make([]uuid.UUID, 0, len(members)-1),
	}
	for _, m := range members[1:] {
		c.DuplicateIDs = append(c.DuplicateIDs, m.ID)
	}

	emailCount := make(map[string]int)
	phoneCount := make(map[string]int)
	for _, m := range members {
		if key := m.EmailKey(); key != "" {
			if emailCount[key] == 0 {
				c.Emails = append(c.Emails, key)
			}
			emailCount[key]++
		}
		if key, ok := m.PhoneKey(); ok {
			if phoneCount[key] == 0 {
				c.Phones = append(c.Phones, key)
			}
			phoneCount[key]++
		}
	}
	c.Reason = reasonFor(len(members), emailCount, phoneCount)
	return c
}

func reasonFor(size int, emails, phones map[string]int) Reason {
	shared := func(counts map[string]int) (edge, all bool) {
		for _, n := range counts {
			if n > 1 {
				edge = true
			}
			if n == size {
				all = true
			}
		}
		return edge, all
	}
	emailEdge, allEmail := shared(emails)
	phoneEdge, allPhone := shared(phones)

	// One key kind spanning every member means the other kind only adds
	// redundant edges, not a chain.
	switch {
	case (allEmail || allPhone) && emailEdge && phoneEdge:
		return ReasonEmailAndPhone
	case emailEdge && phoneEdge:
		return ReasonChain
	case phoneEdge:
		return ReasonPhone
	default:
		return ReasonEmail
	}
}

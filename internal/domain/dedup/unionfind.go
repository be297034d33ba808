package dedup

import "github.com/google/uuid"

// DisjointSet is a union-find forest over patient ids with path compression
// and union by rank.
type DisjointSet struct {
	parent map[uuid.UUID]uuid.UUID
	rank   map[uuid.UUID]int
}

func NewDisjointSet(ids ...uuid.UUID) *DisjointSet {
	d := &DisjointSet{
		parent: make(map[uuid.UUID]uuid.UUID, len(ids)),
		rank:   make(map[uuid.UUID]int, len(ids)),
	}
	for _, id := range ids {
		d.Add(id)
	}
	return d
}

// Add registers id as a singleton. Adding a known id is a no-op.
func (d *DisjointSet) Add(id uuid.UUID) {
	if _, ok := d.parent[id]; !ok {
		d.parent[id] = id
	}
}

// Find returns the representative of id's set, adding id if unseen.
func (d *DisjointSet) Find(id uuid.UUID) uuid.UUID {
	d.Add(id)
	root := id
	for d.parent[root] != root {
		root = d.parent[root]
	}
	for id != root {
		next := d.parent[id]
		d.parent[id] = root
		id = next
	}
	return root
}

// Union merges the sets of a and b. It reports whether they were distinct.
func (d *DisjointSet) Union(a, b uuid.UUID) bool {
	ra, rb := d.Find(a), d.Find(b)
	if ra == rb {
		return false
	}
	switch {
	case d.rank[ra] < d.rank[rb]:
		d.parent[ra] = rb
	case d.rank[ra] > d.rank[rb]:
		d.parent[rb] = ra
	default:
		d.parent[rb] = ra
		d.rank[ra]++
	}
	return true
}

// Connected reports whether a and b are in the same set.
func (d *DisjointSet) Connected(a, b uuid.UUID) bool {
	return d.Find(a) == d.Find(b)
}

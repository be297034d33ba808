package dedup

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/identity/internal/domain/identity"
)

// Status of one cluster after a run.
type Status string

const (
	StatusPreview Status = "preview"
	StatusMerged  Status = "merged"
	StatusPartial Status = "partial"
)

// OpKind classifies a failed write.
type OpKind string

const (
	KindDependentUpdate OpKind = "dependent_update"
	KindBackfill        OpKind = "backfill"
	KindDelete          OpKind = "delete"
)

// OpError records one write that failed during a commit run. The run keeps
// going after an OpError.
type OpError struct {
	CanonicalID uuid.UUID `json:"canonical_id"`
	Kind        OpKind    `json:"kind"`
	Table       string    `json:"table,omitempty"`
	RecordID    uuid.UUID `json:"record_id"`
	Message     string    `json:"message"`
	Err         error     `json:"-"`
}

func (e OpError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s %s (%s): %s", e.Kind, e.Table, e.RecordID, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.RecordID, e.Message)
}

func (e OpError) Unwrap() error { return e.Err }

func opError(c Cluster, kind OpKind, table string, record uuid.UUID, err error) OpError {
	return OpError{
		CanonicalID: c.CanonicalID,
		Kind:        kind,
		Table:       table,
		RecordID:    record,
		Message:     err.Error(),
		Err:         err,
	}
}

// Counts tallies the writes of a run.
type Counts struct {
	RepointsApplied  int   `json:"repoints_applied"`
	RowsRepointed    int64 `json:"rows_repointed"`
	RepointsFailed   int   `json:"repoints_failed"`
	TablesMissing    int   `json:"tables_missing"`
	BackfillsApplied int   `json:"backfills_applied"`
	BackfillsFailed  int   `json:"backfills_failed"`
	DeletesApplied   int   `json:"deletes_applied"`
	DeletesFailed    int   `json:"deletes_failed"`
	AlreadyDeleted   int   `json:"already_deleted"`
}

func (c *Counts) add(o Counts) {
	c.RepointsApplied += o.RepointsApplied
	c.RowsRepointed += o.RowsRepointed
	c.RepointsFailed += o.RepointsFailed
	c.BackfillsApplied += o.BackfillsApplied
	c.BackfillsFailed += o.BackfillsFailed
	c.DeletesApplied += o.DeletesApplied
	c.DeletesFailed += o.DeletesFailed
	c.AlreadyDeleted += o.AlreadyDeleted
}

// MemberSummary is the reviewer-facing view of one cluster member.
type MemberSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Canonical bool      `json:"canonical"`
}

type ClusterReport struct {
	CanonicalID    uuid.UUID       `json:"canonical_id"`
	CanonicalName  string          `json:"canonical_name"`
	DuplicateIDs   []uuid.UUID     `json:"duplicate_ids"`
	Reason         Reason          `json:"reason"`
	Emails         []string        `json:"emails"`
	Phones         []string        `json:"phones"`
	Members        []MemberSummary `json:"members"`
	Backfill       []FieldChange   `json:"backfill,omitempty"`
	Status         Status          `json:"status"`
	AlreadyDeleted []uuid.UUID     `json:"already_deleted,omitempty"`
}

func newClusterReport(c Cluster, plan []FieldChange, status Status) ClusterReport {
	cr := ClusterReport{
		CanonicalID:   c.CanonicalID,
		CanonicalName: c.Canonical().DisplayName(),
		DuplicateIDs:  c.DuplicateIDs,
		Reason:        c.Reason,
		Emails:        c.Emails,
		Phones:        c.Phones,
		Members:       make([]MemberSummary, len(c.Members)),
		Backfill:      plan,
		Status:        status,
	}
	for i, m := range c.Members {
		cr.Members[i] = summarize(m, i == 0)
	}
	return cr
}

func summarize(p *identity.Patient, canonical bool) MemberSummary {
	s := MemberSummary{ID: p.ID, Name: p.DisplayName(), CreatedAt: p.CreatedAt, Canonical: canonical}
	if p.Email != nil {
		s.Email = *p.Email
	}
	if p.Phone != nil {
		s.Phone = *p.Phone
	}
	return s
}

// Report is the outcome of one preview or commit run.
type Report struct {
	Mode              Mode            `json:"mode"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        time.Time       `json:"finished_at"`
	TotalPatients     int             `json:"total_patients"`
	ClustersFound     int             `json:"clusters_found"`
	DuplicatesFound   int             `json:"duplicates_found"`
	DuplicatesRemoved int             `json:"duplicates_removed"`
	Counts            Counts          `json:"counts"`
	MissingTables     []string        `json:"missing_tables,omitempty"`
	Clusters          []ClusterReport `json:"clusters"`
	Errors            []OpError       `json:"errors"`
	Aborted           bool            `json:"aborted"`
}

func (r *Report) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

func (r *Report) HasErrors() bool { return len(r.Errors) > 0 }

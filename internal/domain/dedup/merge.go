package dedup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/clinicops/identity/internal/domain/identity"
)

// Mode selects between a dry run and a destructive run.
type Mode string

const (
	ModePreview Mode = "preview"
	ModeCommit  Mode = "commit"
)

var (
	ErrInvalidMode = errors.New("mode must be preview or commit")
	// ErrDependentsPending marks a duplicate that was kept because at least
	// one of its dependent rows could not be repointed.
	ErrDependentsPending = errors.New("dependent rows still reference this record")
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePreview, ModeCommit:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidMode)
}

// Options tune a commit run.
type Options struct {
	// Workers is the number of clusters merged concurrently. Clusters share
	// no records, so they are independent.
	Workers int
	// OpsPerSecond caps store writes across all workers; 0 means unlimited.
	OpsPerSecond float64
	// OnStart is called once with the number of clusters about to run.
	OnStart func(total int)
	// OnCluster is called after each cluster finishes, from any worker.
	OnCluster func(ClusterReport)
}

type Executor struct {
	store    Store
	registry *Registry
	logger   zerolog.Logger
	opts     Options
	limiter  *rate.Limiter

	progressMu sync.Mutex
}

func NewExecutor(store Store, registry *Registry, logger zerolog.Logger, opts Options) *Executor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	e := &Executor{store: store, registry: registry, logger: logger, opts: opts}
	if opts.OpsPerSecond > 0 {
		burst := int(opts.OpsPerSecond)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(opts.OpsPerSecond), burst)
	}
	return e
}

type clusterResult struct {
	report  ClusterReport
	counts  Counts
	errs    []OpError
	missing map[string]bool
}

// Merge previews or commits clusters. Preview performs no writes. Commit
// repoints dependents, backfills the canonical record and deletes the
// duplicates, one cluster at a time per worker; individual write failures are
// recorded in the report and do not stop the run. Cancellation is observed
// between clusters: the clusters already started complete, and the partial
// report is returned together with the context error.
func (e *Executor) Merge(ctx context.Context, clusters []Cluster, mode Mode) (*Report, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	report := &Report{
		Mode:          mode,
		StartedAt:     time.Now().UTC(),
		ClustersFound: len(clusters),
		Clusters:      make([]ClusterReport, 0, len(clusters)),
		Errors:        []OpError{},
	}
	for _, c := range clusters {
		report.DuplicatesFound += len(c.DuplicateIDs)
	}
	if e.opts.OnStart != nil {
		e.opts.OnStart(len(clusters))
	}

	results := make([]*clusterResult, len(clusters))
	if mode == ModePreview {
		for i, c := range clusters {
			if ctx.Err() != nil {
				break
			}
			results[i] = &clusterResult{
				report: newClusterReport(c, PlanBackfill(c.Canonical(), c.Duplicates()), StatusPreview),
			}
			e.progress(results[i].report)
		}
	} else {
		e.commit(ctx, clusters, results)
	}

	missing := make(map[string]bool)
	for _, r := range results {
		if r == nil {
			continue
		}
		report.Clusters = append(report.Clusters, r.report)
		report.Counts.add(r.counts)
		report.Errors = append(report.Errors, r.errs...)
		for t := range r.missing {
			missing[t] = true
		}
	}
	for t := range missing {
		report.MissingTables = append(report.MissingTables, t)
	}
	sort.Strings(report.MissingTables)
	report.Counts.TablesMissing = len(report.MissingTables)
	report.DuplicatesRemoved = report.Counts.DeletesApplied
	report.FinishedAt = time.Now().UTC()

	if err := ctx.Err(); err != nil {
		report.Aborted = true
		e.logger.Warn().
			Int("clusters_done", len(report.Clusters)).
			Int("clusters_found", report.ClustersFound).
			Msg("merge run cancelled")
		return report, err
	}
	return report, nil
}

func (e *Executor) commit(ctx context.Context, clusters []Cluster, results []*clusterResult) {
	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i, c := range clusters {
		i, c := i, c
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = e.commitCluster(context.WithoutCancel(ctx), c)
			e.progress(results[i].report)
			return nil
		})
	}
	g.Wait()
}

func (e *Executor) commitCluster(ctx context.Context, c Cluster) *clusterResult {
	canonical := c.Canonical()
	plan := PlanBackfill(canonical, c.Duplicates())
	res := &clusterResult{
		report:  newClusterReport(c, plan, StatusMerged),
		missing: make(map[string]bool),
	}

	pending := make(map[uuid.UUID]bool)
	for _, dup := range c.Duplicates() {
		for _, t := range e.registry.Tables {
			e.wait(ctx)
			n, err := e.store.Repoint(ctx, t, dup.ID, canonical.ID)
			switch {
			case errors.Is(err, ErrTableMissing):
				res.missing[t.Table] = true
			case err != nil:
				res.counts.RepointsFailed++
				pending[dup.ID] = true
				res.errs = append(res.errs, opError(c, KindDependentUpdate, t.Table, dup.ID, err))
			default:
				res.counts.RepointsApplied++
				res.counts.RowsRepointed += n
			}
		}
	}

	if len(plan) > 0 {
		e.wait(ctx)
		if err := e.store.ApplyBackfill(ctx, canonical.ID, plan); err != nil {
			res.counts.BackfillsFailed++
			res.errs = append(res.errs, opError(c, KindBackfill, "patients", canonical.ID, err))
		} else {
			res.counts.BackfillsApplied += len(plan)
		}
	}

	for _, dup := range c.Duplicates() {
		if pending[dup.ID] {
			res.counts.DeletesFailed++
			res.errs = append(res.errs, opError(c, KindDelete, "patients", dup.ID, ErrDependentsPending))
			continue
		}
		e.wait(ctx)
		err := e.store.DeletePatient(ctx, dup.ID)
		switch {
		case errors.Is(err, identity.ErrNotFound):
			res.counts.AlreadyDeleted++
			res.report.AlreadyDeleted = append(res.report.AlreadyDeleted, dup.ID)
		case err != nil:
			res.counts.DeletesFailed++
			res.errs = append(res.errs, opError(c, KindDelete, "patients", dup.ID, err))
		default:
			res.counts.DeletesApplied++
		}
	}

	if len(res.errs) > 0 {
		res.report.Status = StatusPartial
	}
	for _, oe := range res.errs {
		e.logger.Warn().
			Str("canonical_id", oe.CanonicalID.String()).
			Str("kind", string(oe.Kind)).
			Str("table", oe.Table).
			Str("record_id", oe.RecordID.String()).
			Err(oe.Err).
			Msg("merge operation failed")
	}
	e.logger.Info().
		Str("canonical_id", c.CanonicalID.String()).
		Int("duplicates", len(c.DuplicateIDs)).
		Str("reason", string(c.Reason)).
		Str("status", string(res.report.Status)).
		Int64("rows_repointed", res.counts.RowsRepointed).
		Msg("cluster merged")
	return res
}

// wait throttles writes. ctx is the cluster's WithoutCancel context and the
// burst is at least one, so Wait only fails if that ever changes.
func (e *Executor) wait(ctx context.Context) {
	if e.limiter == nil {
		return
	}
	if err := e.limiter.Wait(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("merge rate limiter wait failed")
	}
}

func (e *Executor) progress(cr ClusterReport) {
	if e.opts.OnCluster == nil {
		return
	}
	e.progressMu.Lock()
	defer e.progressMu.Unlock()
	e.opts.OnCluster(cr)
}

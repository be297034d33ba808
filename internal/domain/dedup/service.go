package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var ErrRunInProgress = errors.New("a merge run is already in progress")

// Locker guards commit runs so that only one mutates the population at a
// time, across processes when backed by redis.
type Locker interface {
	// TryLock reports false without blocking when the lock is held elsewhere.
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

type Service struct {
	store    Store
	registry *Registry
	locker   Locker
	logger   zerolog.Logger
	opts     Options
}

// NewService wires a merge service. locker may be nil, in which case commit
// runs are not serialized.
func NewService(store Store, registry *Registry, locker Locker, logger zerolog.Logger, opts Options) *Service {
	return &Service{store: store, registry: registry, locker: locker, logger: logger, opts: opts}
}

func (s *Service) Registry() *Registry { return s.registry }

// Preview clusters the current population and reports what a commit would do.
func (s *Service) Preview(ctx context.Context) (*Report, error) {
	return s.Run(ctx, ModePreview)
}

// Run snapshots the population, builds clusters and hands them to the merge
// executor. Failing to read the snapshot is fatal; individual write failures
// are reported in the returned report.
func (s *Service) Run(ctx context.Context, mode Mode) (*Report, error) {
	return s.RunWith(ctx, mode, s.opts)
}

// RunWith is Run with per-call options, such as a progress hook.
func (s *Service) RunWith(ctx context.Context, mode Mode, opts Options) (*Report, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	if mode == ModeCommit && s.locker != nil {
		ok, err := s.locker.TryLock(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire merge lock: %w", err)
		}
		if !ok {
			return nil, ErrRunInProgress
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Error().Err(err).Msg("release merge lock")
			}
		}()
	}

	patients, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot patients: %w", err)
	}
	clusters := FindClusters(patients)

	s.logger.Info().
		Str("mode", string(mode)).
		Int("patients", len(patients)).
		Int("clusters", len(clusters)).
		Msg("merge run started")

	report, err := NewExecutor(s.store, s.registry, s.logger, opts).Merge(ctx, clusters, mode)
	if report != nil {
		report.TotalPatients = len(patients)
		s.logger.Info().
			Str("mode", string(mode)).
			Int("duplicates_found", report.DuplicatesFound).
			Int("duplicates_removed", report.DuplicatesRemoved).
			Int("errors", len(report.Errors)).
			Dur("elapsed", report.Duration()).
			Msg("merge run finished")
	}
	return report, err
}

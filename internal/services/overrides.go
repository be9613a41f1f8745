package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cronograma/internal/core"
	"cronograma/internal/log"
	"cronograma/internal/metrics"
	"cronograma/internal/overrides"
	"cronograma/internal/sources"
)

type OverrideOptions struct {
	Registry *overrides.Registry
	Now      func() time.Time
	Metrics  *metrics.Metrics
	Logger   *log.Logger
}

// OverrideService stores manual matrix values. Computed inputs are never
// touched, so removing an override restores the computed cell as it was.
type OverrideService struct {
	plans    PlanProvider
	store    sources.OverrideStore
	registry *overrides.Registry
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *log.Logger
}

func NewOverrideService(plans PlanProvider, store sources.OverrideStore, opts OverrideOptions) *OverrideService {
	if opts.Registry == nil {
		opts.Registry = overrides.DefaultRegistry()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.FromContext(context.Background())
	}
	return &OverrideService{
		plans:    plans,
		store:    store,
		registry: opts.Registry,
		now:      opts.Now,
		metrics:  opts.Metrics,
		logger:   opts.Logger.WithComponent(log.ComponentOverrides),
	}
}

func (s *OverrideService) Registry() *overrides.Registry { return s.registry }

// SaveOverrides upserts entries keyed by (month, concept); a later entry for
// the same key in one batch wins. Every entry is checked against the concept
// registry first and nothing is written if any is rejected.
func (s *OverrideService) SaveOverrides(ctx context.Context, ref core.PlanRef, entries []core.MatrixOverride, by string) (saved []core.MatrixOverride, err error) {
	defer func() { s.metrics.ObserveMutation("override", "upsert", err) }()

	if len(entries) == 0 {
		return []core.MatrixOverride{}, nil
	}
	now := s.now().UTC()
	index := make(map[string]int, len(entries))
	batch := make([]core.MatrixOverride, 0, len(entries))
	for i, e := range entries {
		e.Concept = strings.TrimSpace(e.Concept)
		e.Value = strings.TrimSpace(e.Value)
		if _, err := s.registry.Validate(e); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		e.UpdatedAt = now
		e.UpdatedBy = by
		k := e.Month.Token() + "/" + e.Concept
		if j, ok := index[k]; ok {
			batch[j] = e
			continue
		}
		index[k] = len(batch)
		batch = append(batch, e)
	}

	plan, err := s.plans.Plan(ctx, ref)
	if err != nil {
		return nil, err
	}
	for i := range batch {
		batch[i].PlanID = plan.ID
	}
	if err := s.store.UpsertOverrides(ctx, plan.ID, batch); err != nil {
		return nil, fmt.Errorf("save overrides: %w", err)
	}
	s.logger.InfoContext(ctx, "Overrides saved",
		log.NewFields().WithScope(ref).WithOperation(log.OpUpdate).ToSlice()...)
	s.logger.DebugContext(ctx, "Override batch", "count", len(batch), "updated_by", by)
	return batch, nil
}

// DeleteOverride reverts one cell to its computed value.
func (s *OverrideService) DeleteOverride(ctx context.Context, ref core.PlanRef, month core.Month, concept string) (err error) {
	defer func() { s.metrics.ObserveMutation("override", log.OpDelete, err) }()

	if err := month.Validate(); err != nil {
		return err
	}
	plan, err := s.plans.Plan(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.store.DeleteOverride(ctx, plan.ID, month, concept); err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	s.logger.InfoContext(ctx, "Override deleted",
		log.FieldPlanID, plan.ID, log.FieldMonth, month.Token(), log.FieldConcept, concept)
	return nil
}

func (s *OverrideService) ListOverrides(ctx context.Context, ref core.PlanRef) ([]core.MatrixOverride, error) {
	plan, err := s.plans.Plan(ctx, ref)
	if err != nil {
		return nil, err
	}
	list, err := s.store.ListOverrides(ctx, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	return list, nil
}

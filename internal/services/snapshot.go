package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"cronograma/internal/core"
	"cronograma/internal/log"
	"cronograma/internal/sources"
)

// Snapshot is everything one calculation reads, fetched together so the
// result reflects a single point in time as closely as the sources allow.
type Snapshot struct {
	Plan         core.Plan
	Lines        []core.Line
	Budget       core.BudgetTotals
	Installments []core.Installment
	Overrides    []core.MatrixOverride
}

type SnapshotSources struct {
	Lines     sources.LineStore
	Overrides sources.OverrideStore
	Budget    sources.BudgetReader
	Payments  sources.PaymentPlanReader
	Catalog   Catalog
}

// SnapshotLoader reads a fresh snapshot on every call. Nothing is kept
// between calls.
type SnapshotLoader struct {
	plans PlanProvider
	src   SnapshotSources
}

func NewSnapshotLoader(plans PlanProvider, src SnapshotSources) *SnapshotLoader {
	return &SnapshotLoader{plans: plans, src: src}
}

// Load fetches lines, budget, installments and overrides concurrently. The
// first failure cancels the others.
func (l *SnapshotLoader) Load(ctx context.Context, ref core.PlanRef) (*Snapshot, error) {
	plan, err := l.plans.Plan(ctx, ref)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Plan: plan}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lines, err := l.src.Lines.ListLines(gctx, plan.ID)
		if err != nil {
			return fmt.Errorf("list lines: %w", err)
		}
		if l.src.Catalog != nil {
			// Unlabelled lines still calculate; the category id stands in.
			if err := l.src.Catalog.Label(gctx, lines); err != nil {
				log.FromContext(ctx).WarnContext(ctx, "Category labels unavailable",
					log.FieldPlanID, plan.ID, log.FieldError, err)
			}
		}
		snap.Lines = lines
		return nil
	})
	g.Go(func() error {
		budget, err := l.src.Budget.BudgetTotals(gctx, ref)
		if err != nil {
			return fmt.Errorf("budget totals: %w", err)
		}
		snap.Budget = budget
		return nil
	})
	g.Go(func() error {
		list, err := l.src.Payments.Installments(gctx, ref)
		if err != nil {
			return fmt.Errorf("installments: %w", err)
		}
		snap.Installments = list
		return nil
	})
	g.Go(func() error {
		list, err := l.src.Overrides.ListOverrides(gctx, plan.ID)
		if err != nil {
			return fmt.Errorf("list overrides: %w", err)
		}
		snap.Overrides = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", ref, err)
	}
	return snap, nil
}

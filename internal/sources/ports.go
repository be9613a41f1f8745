// Package sources declares the ports the schedule engine reads from and
// writes to. Implementations live in memory (in-process), google (Sheets
// readers) and storage (SQL).
package sources

import (
	"context"

	"cronograma/internal/core"
)

// Ports for outbound adapters.
type (
	// PlanStore owns the single Plan of each (client, project) scope.
	PlanStore interface {
		// GetOrCreatePlan returns the plan for defaults.Ref(), inserting
		// defaults when none exists. Concurrent callers see the same plan.
		GetOrCreatePlan(ctx context.Context, defaults core.Plan) (core.Plan, error)
		GetPlan(ctx context.Context, ref core.PlanRef) (core.Plan, error)
	}

	LineStore interface {
		CreateLine(ctx context.Context, l core.Line) (core.Line, error)
		GetLine(ctx context.Context, id int64) (core.Line, error)
		UpdateLine(ctx context.Context, l core.Line) (core.Line, error)
		// DeleteLine removes the line together with its activity.
		DeleteLine(ctx context.Context, id int64) error
		// ListLines returns the plan's lines by display order, activities attached.
		ListLines(ctx context.Context, planID int64) ([]core.Line, error)
	}

	ActivityStore interface {
		// CreateActivity fails with core.ErrConflict when the line already has one.
		CreateActivity(ctx context.Context, a core.Activity) (core.Activity, error)
		GetActivity(ctx context.Context, id int64) (core.Activity, error)
		UpdateActivity(ctx context.Context, a core.Activity) (core.Activity, error)
		DeleteActivity(ctx context.Context, id int64) error
	}

	ScheduleStore interface {
		PlanStore
		LineStore
		ActivityStore
	}

	// OverrideStore keeps matrix overrides apart from computed values.
	OverrideStore interface {
		// UpsertOverrides replaces the value of each (month, concept) key.
		UpsertOverrides(ctx context.Context, planID int64, list []core.MatrixOverride) error
		DeleteOverride(ctx context.Context, planID int64, month core.Month, concept string) error
		ListOverrides(ctx context.Context, planID int64) ([]core.MatrixOverride, error)
	}

	CategoryReader interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
	}

	// BudgetReader is the budget aggregator: totals per category for a scope.
	BudgetReader interface {
		BudgetTotals(ctx context.Context, ref core.PlanRef) (core.BudgetTotals, error)
	}

	// PaymentPlanReader lists the installments of a scope ordered by due date.
	PaymentPlanReader interface {
		Installments(ctx context.Context, ref core.PlanRef) ([]core.Installment, error)
	}

	// Store is everything one backend provides.
	Store interface {
		ScheduleStore
		OverrideStore
		CategoryReader
		BudgetReader
		PaymentPlanReader
	}
)

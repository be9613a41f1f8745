package services

import (
	"context"
	"time"

	"cronograma/internal/core"
	"cronograma/internal/distribution"
	"cronograma/internal/log"
	"cronograma/internal/metrics"
	"cronograma/internal/overrides"
)

// Calculation is the read model served to the UI: the plan, its lines, the
// five monthly series, the positioned bars and the display matrix.
type Calculation struct {
	Plan         core.Plan                        `json:"plan"`
	Reference    core.MonthWeek                   `json:"reference"`
	Lines        []core.Line                      `json:"lines"`
	Calculations distribution.MonthlyCalculations `json:"calculations"`
	Bars         []distribution.Bar               `json:"bars"`
	Matrix       overrides.Matrix                 `json:"matrix"`
}

type CalculationService struct {
	loader   *SnapshotLoader
	registry *overrides.Registry
	metrics  *metrics.Metrics
	logger   *log.Logger
}

func NewCalculationService(loader *SnapshotLoader, registry *overrides.Registry, m *metrics.Metrics, logger *log.Logger) *CalculationService {
	if registry == nil {
		registry = overrides.DefaultRegistry()
	}
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &CalculationService{
		loader:   loader,
		registry: registry,
		metrics:  m,
		logger:   logger.WithComponent(log.ComponentSchedule),
	}
}

// Calculate recomputes everything from a fresh snapshot. Bar status is
// measured against reference; lang picks the matrix row labels.
func (s *CalculationService) Calculate(ctx context.Context, ref core.PlanRef, reference time.Time, lang string) (*Calculation, error) {
	snap, err := s.loader.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	calc := distribution.Calculate(distribution.Input{
		Horizon:      snap.Plan.Horizon(),
		Lines:        snap.Lines,
		Budget:       snap.Budget,
		Installments: snap.Installments,
	})
	s.report(ctx, ref, calc.Warnings)

	mw := core.MonthWeekOf(reference)
	mx := overrides.Resolve(s.registry, calc, snap.Overrides, lang)
	for _, ig := range mx.Ignored {
		s.logger.WarnContext(ctx, "Stored override not applied",
			log.FieldClientID, ref.ClientID, log.FieldProjectID, ref.ProjectID,
			log.FieldMonth, ig.Override.Month.Token(), log.FieldConcept, ig.Override.Concept,
			"reason", ig.Reason)
	}
	return &Calculation{
		Plan:         snap.Plan,
		Reference:    mw,
		Lines:        snap.Lines,
		Calculations: calc,
		Bars:         distribution.Bars(snap.Plan.StartMonth, snap.Lines, mw),
		Matrix:       mx,
	}, nil
}

// report makes data-quality warnings visible to operators without failing
// the read.
func (s *CalculationService) report(ctx context.Context, ref core.PlanRef, warnings []distribution.Warning) {
	for _, w := range warnings {
		s.metrics.CountWarning(string(w.Kind))
		fields := log.NewFields().WithScope(ref).WithOperation(log.OpCalculate)
		fields[log.FieldWarningKind] = string(w.Kind)
		if w.CategoryID != 0 {
			fields[log.FieldCategoryID] = w.CategoryID
		}
		if w.LineID != 0 {
			fields[log.FieldLineID] = w.LineID
		}
		if w.Month != nil {
			fields[log.FieldMonth] = w.Month.Token()
		}
		s.logger.WarnContext(ctx, w.Detail, fields.ToSlice()...)
	}
}

// Package services orchestrates the schedule engine: boundary validation and
// atomic writes against the store, snapshot loading, calculation, and
// document export.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"cronograma/internal/core"
	"cronograma/internal/log"
	"cronograma/internal/metrics"
	"cronograma/internal/sources"
)

const (
	// compensationTimeout bounds the rollback of a half-written line. It runs
	// detached from the request context so a cancelled request still cleans up.
	compensationTimeout = 10 * time.Second
	// planTimeout bounds the plan lookup shared by concurrent callers, which
	// must not fail because the first caller went away.
	planTimeout = 10 * time.Second
)

// Catalog resolves category labels. *cache.Catalog satisfies it.
type Catalog interface {
	Lookup(ctx context.Context, id int64) (core.Category, bool, error)
	Label(ctx context.Context, lines []core.Line) error
}

// PlanProvider hands out the plan of a scope, creating it on first access.
type PlanProvider interface {
	Plan(ctx context.Context, ref core.PlanRef) (core.Plan, error)
}

type (
	// LineInput creates a line together with its timeline span.
	LineInput struct {
		CategoryID int64
		Amount     decimal.Decimal
		IsDiscount bool
		Order      int
		Span       core.Span
	}

	// LinePatch holds the fields to change; nil means unchanged. A span
	// reschedules the line's activity, or creates one when it has none.
	LinePatch struct {
		CategoryID *int64
		Amount     *decimal.Decimal
		IsDiscount *bool
		Order      *int
		Span       *core.Span
	}

	// ActivityPatch moves either end of a span. The result is validated
	// as a whole.
	ActivityPatch struct {
		Start *core.MonthWeek
		End   *core.MonthWeek
	}
)

type ScheduleOptions struct {
	HorizonMonths int
	Now           func() time.Time
	Catalog       Catalog
	Metrics       *metrics.Metrics
	Logger        *log.Logger
}

// ScheduleService is the only writer of plans, lines and activities.
type ScheduleService struct {
	store   sources.ScheduleStore
	catalog Catalog
	metrics *metrics.Metrics
	logger  *log.Logger
	events  *log.StructuredLogger
	horizon int
	now     func() time.Time
	plans   singleflight.Group
}

var _ PlanProvider = (*ScheduleService)(nil)

func NewScheduleService(store sources.ScheduleStore, opts ScheduleOptions) *ScheduleService {
	if opts.HorizonMonths <= 0 {
		opts.HorizonMonths = core.DefaultHorizonMonths
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.FromContext(context.Background())
	}
	logger := opts.Logger.WithComponent(log.ComponentSchedule)
	return &ScheduleService{
		store:   store,
		catalog: opts.Catalog,
		metrics: opts.Metrics,
		logger:  logger,
		events:  log.NewStructuredLogger(logger),
		horizon: opts.HorizonMonths,
		now:     opts.Now,
	}
}

func (s *ScheduleService) observe(entity, op string, err *error) {
	s.metrics.ObserveMutation(entity, op, *err)
}

// Plan fetches the plan of ref, creating it with the default horizon starting
// at the current month. Concurrent first requests in this process share one
// store call; across processes the store's unique key decides. A caller whose
// ctx ends stops waiting without failing the shared call.
func (s *ScheduleService) Plan(ctx context.Context, ref core.PlanRef) (core.Plan, error) {
	if err := ref.Validate(); err != nil {
		return core.Plan{}, err
	}
	key := ref.ClientID + "\x00" + ref.ProjectID
	ch := s.plans.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), planTimeout)
		defer cancel()
		now := s.now()
		return s.store.GetOrCreatePlan(sctx, core.Plan{
			ClientID:    ref.ClientID,
			ProjectID:   ref.ProjectID,
			StartMonth:  core.MonthOf(now),
			MonthsCount: s.horizon,
			CreatedAt:   now.UTC(),
		})
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return core.Plan{}, fmt.Errorf("get plan %s: %w", ref, ctx.Err())
	}
	if res.Err != nil {
		return core.Plan{}, fmt.Errorf("get plan %s: %w", ref, res.Err)
	}
	return res.Val.(core.Plan), nil
}

// PlanLines returns the plan with its labelled lines.
func (s *ScheduleService) PlanLines(ctx context.Context, ref core.PlanRef) (core.Plan, []core.Line, error) {
	plan, err := s.Plan(ctx, ref)
	if err != nil {
		return core.Plan{}, nil, err
	}
	lines, err := s.store.ListLines(ctx, plan.ID)
	if err != nil {
		return core.Plan{}, nil, fmt.Errorf("list lines: %w", err)
	}
	s.label(ctx, lines)
	return plan, lines, nil
}

func (s *ScheduleService) label(ctx context.Context, lines []core.Line) {
	if s.catalog == nil {
		return
	}
	if err := s.catalog.Label(ctx, lines); err != nil {
		s.logger.WarnContext(ctx, "Category labels unavailable", log.FieldError, err)
	}
}

// checkCategory rejects categories the catalog does not know. A catalog that
// cannot be read does not block the write.
func (s *ScheduleService) checkCategory(ctx context.Context, id int64) error {
	if s.catalog == nil {
		return nil
	}
	_, ok, err := s.catalog.Lookup(ctx, id)
	if err != nil {
		s.logger.WarnContext(ctx, "Category lookup failed, accepting id as is",
			log.FieldCategoryID, id, log.FieldError, err)
		return nil
	}
	if !ok {
		return &core.ValidationError{
			Field:  "category_id",
			Reason: fmt.Sprintf("unknown category %d", id),
			Err:    core.ErrMissingCategory,
		}
	}
	return nil
}

// CreateLine stores a line and its activity as one unit. Inputs are validated
// before anything is written. If the activity insert fails the line is
// deleted again; the returned error wraps core.ErrPartialWrite and joins the
// insert failure with the rollback failure, if any.
func (s *ScheduleService) CreateLine(ctx context.Context, ref core.PlanRef, in LineInput) (created core.Line, err error) {
	defer s.observe("line", log.OpCreate, &err)

	line := core.Line{
		CategoryID: in.CategoryID,
		Amount:     in.Amount,
		IsDiscount: in.IsDiscount,
		Order:      in.Order,
	}
	if err := line.Validate(); err != nil {
		return core.Line{}, err
	}
	if err := in.Span.Validate(); err != nil {
		return core.Line{}, err
	}
	if err := s.checkCategory(ctx, line.CategoryID); err != nil {
		return core.Line{}, err
	}
	plan, err := s.Plan(ctx, ref)
	if err != nil {
		return core.Line{}, err
	}
	line.PlanID = plan.ID

	created, err = s.store.CreateLine(ctx, line)
	if err != nil {
		return core.Line{}, fmt.Errorf("create line: %w", err)
	}
	act, err := core.NewActivity(created.ID, in.Span)
	if err == nil {
		act, err = s.store.CreateActivity(ctx, act)
	}
	if err != nil {
		return core.Line{}, s.rollbackLine(ctx, created.ID, err)
	}

	created.Activity = &act
	lines := []core.Line{created}
	s.label(ctx, lines)
	s.events.LogLineCreated(ctx, ref, lines[0])
	return lines[0], nil
}

func (s *ScheduleService) rollbackLine(ctx context.Context, lineID int64, cause error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	delErr := s.store.DeleteLine(cctx, lineID)
	if delErr != nil {
		s.logger.ErrorContext(ctx, "Line left without activity, rollback failed",
			log.FieldLineID, lineID, log.FieldError, cause, "rollback_error", delErr)
		delErr = fmt.Errorf("delete line %d: %w", lineID, delErr)
	} else {
		s.logger.WarnContext(ctx, "Activity insert failed, line rolled back",
			log.FieldLineID, lineID, log.FieldError, cause)
	}
	return fmt.Errorf("%w: create activity for line %d: %w", core.ErrPartialWrite, lineID, errors.Join(cause, delErr))
}

// UpdateLine applies patch. The whole result, including a new span, is
// validated before the first write. If the activity write fails the line is
// restored; the returned error wraps core.ErrPartialWrite and joins the
// activity failure with the restore failure, if any.
func (s *ScheduleService) UpdateLine(ctx context.Context, id int64, patch LinePatch) (updated core.Line, err error) {
	defer s.observe("line", log.OpUpdate, &err)

	cur, err := s.store.GetLine(ctx, id)
	if err != nil {
		return core.Line{}, fmt.Errorf("get line: %w", err)
	}
	next := cur
	if patch.CategoryID != nil {
		next.CategoryID = *patch.CategoryID
	}
	if patch.Amount != nil {
		next.Amount = *patch.Amount
	}
	if patch.IsDiscount != nil {
		next.IsDiscount = *patch.IsDiscount
	}
	if patch.Order != nil {
		next.Order = *patch.Order
	}
	if err := next.Validate(); err != nil {
		return core.Line{}, err
	}
	var act core.Activity
	if patch.Span != nil {
		if act, err = plannedActivity(cur, *patch.Span); err != nil {
			return core.Line{}, err
		}
	}
	if next.CategoryID != cur.CategoryID {
		if err := s.checkCategory(ctx, next.CategoryID); err != nil {
			return core.Line{}, err
		}
		next.CategoryCode, next.CategoryLabel = "", ""
	}

	updated, err = s.store.UpdateLine(ctx, next)
	if err != nil {
		return core.Line{}, fmt.Errorf("update line: %w", err)
	}
	if patch.Span != nil {
		if act, err = s.writeActivity(ctx, act); err != nil {
			return core.Line{}, s.restoreLine(ctx, cur, err)
		}
		updated.Activity = &act
	}
	lines := []core.Line{updated}
	s.label(ctx, lines)
	s.logger.InfoContext(ctx, "Line updated", log.NewFields().WithLine(lines[0]).WithOperation(log.OpUpdate).ToSlice()...)
	return lines[0], nil
}

// plannedActivity is l's activity moved to span, or a new one when l has none.
func plannedActivity(l core.Line, span core.Span) (core.Activity, error) {
	if l.Activity == nil {
		return core.NewActivity(l.ID, span)
	}
	return l.Activity.Reschedule(span)
}

// writeActivity inserts act when it has no id yet and updates it otherwise.
func (s *ScheduleService) writeActivity(ctx context.Context, act core.Activity) (core.Activity, error) {
	if act.ID == 0 {
		created, err := s.store.CreateActivity(ctx, act)
		if err != nil {
			return core.Activity{}, fmt.Errorf("create activity: %w", err)
		}
		return created, nil
	}
	moved, err := s.store.UpdateActivity(ctx, act)
	if err != nil {
		return core.Activity{}, fmt.Errorf("update activity: %w", err)
	}
	return moved, nil
}

func (s *ScheduleService) restoreLine(ctx context.Context, prev core.Line, cause error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	_, restoreErr := s.store.UpdateLine(cctx, prev)
	if restoreErr != nil {
		s.logger.ErrorContext(ctx, "Line left with a partial update, restore failed",
			log.FieldLineID, prev.ID, log.FieldError, cause, "restore_error", restoreErr)
		restoreErr = fmt.Errorf("restore line %d: %w", prev.ID, restoreErr)
	} else {
		s.logger.WarnContext(ctx, "Activity write failed, line restored",
			log.FieldLineID, prev.ID, log.FieldError, cause)
	}
	return fmt.Errorf("%w: update line %d: %w", core.ErrPartialWrite, prev.ID, errors.Join(cause, restoreErr))
}

// DeleteLine removes the line and its activity.
func (s *ScheduleService) DeleteLine(ctx context.Context, id int64) (err error) {
	defer s.observe("line", log.OpDelete, &err)
	if err := s.store.DeleteLine(ctx, id); err != nil {
		return fmt.Errorf("delete line: %w", err)
	}
	s.logger.InfoContext(ctx, "Line deleted", log.FieldLineID, id)
	return nil
}

// CreateActivity gives a line without one its timeline span.
func (s *ScheduleService) CreateActivity(ctx context.Context, lineID int64, span core.Span) (created core.Activity, err error) {
	defer s.observe("activity", log.OpCreate, &err)

	act, err := core.NewActivity(lineID, span)
	if err != nil {
		return core.Activity{}, err
	}
	if _, err := s.store.GetLine(ctx, lineID); err != nil {
		return core.Activity{}, fmt.Errorf("get line: %w", err)
	}
	created, err = s.store.CreateActivity(ctx, act)
	if err != nil {
		return core.Activity{}, fmt.Errorf("create activity: %w", err)
	}
	s.logger.InfoContext(ctx, "Activity created",
		log.FieldActivityID, created.ID, log.FieldLineID, lineID, "duration_weeks", created.DurationWeeks)
	return created, nil
}

// UpdateActivity moves the span and recomputes its duration. A patch that
// leaves the end before the start is rejected.
func (s *ScheduleService) UpdateActivity(ctx context.Context, id int64, patch ActivityPatch) (updated core.Activity, err error) {
	defer s.observe("activity", log.OpUpdate, &err)

	cur, err := s.store.GetActivity(ctx, id)
	if err != nil {
		return core.Activity{}, fmt.Errorf("get activity: %w", err)
	}
	span := cur.Span
	if patch.Start != nil {
		span.Start = *patch.Start
	}
	if patch.End != nil {
		span.End = *patch.End
	}
	next, err := cur.Reschedule(span)
	if err != nil {
		return core.Activity{}, err
	}
	updated, err = s.store.UpdateActivity(ctx, next)
	if err != nil {
		return core.Activity{}, fmt.Errorf("update activity: %w", err)
	}
	s.logger.InfoContext(ctx, "Activity rescheduled",
		log.FieldActivityID, id, "start", span.Start.String(), "end", span.End.String(), "duration_weeks", updated.DurationWeeks)
	return updated, nil
}

func (s *ScheduleService) DeleteActivity(ctx context.Context, id int64) (err error) {
	defer s.observe("activity", log.OpDelete, &err)
	if err := s.store.DeleteActivity(ctx, id); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	s.logger.InfoContext(ctx, "Activity deleted", log.FieldActivityID, id)
	return nil
}

package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronograma/internal/amqp"
	"cronograma/internal/cache"
	"cronograma/internal/core"
	"cronograma/internal/sources"
	"cronograma/internal/sources/memory"
)

var scope = core.PlanRef{ClientID: "c1", ProjectID: "p1"}

func fixedNow() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }

func mw(y, m, w int) core.MonthWeek {
	return core.MonthWeek{Month: core.Month{Year: y, Month: m}, Week: w}
}

func span(a, b core.MonthWeek) core.Span { return core.Span{Start: a, End: b} }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type env struct {
	mem       *memory.Store
	schedule  *ScheduleService
	overrides *OverrideService
	calc      *CalculationService
	export    *ExportService
}

// newEnv wires the services over an in-memory store. store may wrap mem to
// inject failures; nil uses mem directly.
func newEnv(t *testing.T, mem *memory.Store, store sources.ScheduleStore, pub Publisher) *env {
	t.Helper()
	if mem == nil {
		mem = memory.New([]core.Category{
			{ID: 1, Code: "01", Name: "Preliminares"},
			{ID: 2, Code: "02", Name: "Cimentación"},
		})
	}
	if store == nil {
		store = mem
	}
	catalog := cache.NewCatalog(mem, time.Minute)
	schedule := NewScheduleService(store, ScheduleOptions{Now: fixedNow, Catalog: catalog})
	calc := NewCalculationService(NewSnapshotLoader(schedule, SnapshotSources{
		Lines:     store,
		Overrides: mem,
		Budget:    mem,
		Payments:  mem,
		Catalog:   catalog,
	}), nil, nil, nil)
	return &env{
		mem:       mem,
		schedule:  schedule,
		overrides: NewOverrideService(schedule, mem, OverrideOptions{Now: fixedNow}),
		calc:      calc,
		export:    NewExportService(calc, ExportOptions{Now: fixedNow, Publisher: pub, Timeout: time.Minute}),
	}
}

func TestScheduleService_PlanIsCreatedOnce(t *testing.T) {
	e := newEnv(t, nil, nil, nil)
	ctx := context.Background()

	ids := make([]int64, 20)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := e.schedule.Plan(ctx, scope)
			assert.NoError(t, err)
			ids[i] = p.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	p, err := e.schedule.Plan(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, core.Month{Year: 2026, Month: 3}, p.StartMonth)
	assert.Equal(t, core.DefaultHorizonMonths, p.MonthsCount)

	_, err = e.schedule.Plan(ctx, core.PlanRef{ClientID: "c1"})
	assert.True(t, core.IsValidation(err))
}

func TestScheduleService_CreateLine(t *testing.T) {
	e := newEnv(t, nil, nil, nil)
	ctx := context.Background()

	l, err := e.schedule.CreateLine(ctx, scope, LineInput{
		CategoryID: 1,
		Amount:     dec("120000"),
		Span:       span(mw(2026, 3, 1), mw(2026, 5, 4)),
	})
	require.NoError(t, err)
	require.NotNil(t, l.Activity)
	assert.Equal(t, 12, l.Activity.DurationWeeks)
	assert.Equal(t, "01 Preliminares", l.Label())

	_, lines, err := e.schedule.PlanLines(ctx, scope)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, l.ID, lines[0].ID)
}

func TestScheduleService_CreateLineRejectsBeforeWriting(t *testing.T) {
	e := newEnv(t, nil, nil, nil)
	ctx := context.Background()
	good := span(mw(2026, 3, 1), mw(2026, 3, 4))

	tests := []struct {
		name string
		in   LineInput
		want error
	}{
		{"reversed span", LineInput{CategoryID: 1, Amount: dec("10"), Span: span(mw(2026, 4, 2), mw(2026, 4, 1))}, core.ErrInvalidRange},
		{"bad week", LineInput{CategoryID: 1, Amount: dec("10"), Span: span(mw(2026, 4, 5), mw(2026, 4, 5))}, core.ErrInvalidWeek},
		{"zero amount", LineInput{CategoryID: 1, Amount: decimal.Zero, Span: good}, core.ErrInvalidAmount},
		{"no category", LineInput{Amount: dec("10"), Span: good}, core.ErrMissingCategory},
		{"unknown category", LineInput{CategoryID: 99, Amount: dec("10"), Span: good}, core.ErrMissingCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.schedule.CreateLine(ctx, scope, tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, core.IsValidation(err))
		})
	}

	_, lines, err := e.schedule.PlanLines(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

type failingStore struct {
	*memory.Store
	activityErr   error
	rescheduleErr error
	deleteErr     error
}

func (f *failingStore) UpdateActivity(ctx context.Context, a core.Activity) (core.Activity, error) {
	if f.rescheduleErr != nil {
		return core.Activity{}, f.rescheduleErr
	}
	return f.Store.UpdateActivity(ctx, a)
}

func (f *failingStore) CreateActivity(ctx context.Context, a core.Activity) (core.Activity, error) {
	if f.activityErr != nil {
		return core.Activity{}, f.activityErr
	}
	return f.Store.CreateActivity(ctx, a)
}

func (f *failingStore) DeleteLine(ctx context.Context, id int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.DeleteLine(ctx, id)
}

func TestScheduleService_CreateLineRollsBackOnActivityFailure(t *testing.T) {
	mem := memory.New([]core.Category{{ID: 1, Code: "01", Name: "Preliminares"}})
	insertErr := assert.AnError
	e := newEnv(t, mem, &failingStore{Store: mem, activityErr: insertErr}, nil)
	ctx := context.Background()

	_, err := e.schedule.CreateLine(ctx, scope, LineInput{CategoryID: 1, Amount: dec("10"), Span: span(mw(2026, 3, 1), mw(2026, 3, 2))})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPartialWrite)
	assert.ErrorIs(t, err, insertErr)

	plan, err := mem.GetPlan(ctx, scope)
	require.NoError(t, err)
	lines, err := mem.ListLines(ctx, plan.ID)
	require.NoError(t, err)
	assert.Empty(t, lines, "the line must not survive without its activity")
}

func TestScheduleService_CreateLineReportsFailedRollback(t *testing.T) {
	mem := memory.New([]core.Category{{ID: 1, Code: "01", Name: "Preliminares"}})
	insertErr := assert.AnError
	deleteErr := context.DeadlineExceeded
	e := newEnv(t, mem, &failingStore{Store: mem, activityErr: insertErr, deleteErr: deleteErr}, nil)

	_, err := e.schedule.CreateLine(context.Background(), scope, LineInput{CategoryID: 1, Amount: dec("10"), Span: span(mw(2026, 3, 1), mw(2026, 3, 2))})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPartialWrite)
	assert.ErrorIs(t, err, insertErr)
	assert.ErrorIs(t, err, deleteErr)
}

func TestScheduleService_UpdateLineRestoresLineOnActivityFailure(t *testing.T) {
	mem := memory.New([]core.Category{{ID: 1, Code: "01", Name: "Preliminares"}})
	store := &failingStore{Store: mem}
	e := newEnv(t, mem, store, nil)
	ctx := context.Background()

	l, err := e.schedule.CreateLine(ctx, scope, LineInput{CategoryID: 1, Amount: dec("10"), Span: span(mw(2026, 3, 1), mw(2026, 3, 2))})
	require.NoError(t, err)
	require.NoError(t, e.schedule.DeleteActivity(ctx, l.Activity.ID))

	store.activityErr = assert.AnError
	amount := dec("999")
	newSpan := span(mw(2026, 4, 1), mw(2026, 4, 4))
	_, err = e.schedule.UpdateLine(ctx, l.ID, LinePatch{Amount: &amount, Span: &newSpan})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPartialWrite)
	assert.ErrorIs(t, err, assert.AnError)

	got, err := mem.GetLine(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(got.Amount), "amount = %s", got.Amount)
	assert.Nil(t, got.Activity)
}

func TestScheduleService_UpdateLineRestoresLineOnRescheduleFailure(t *testing.T) {
	mem := memory.New([]core.Category{{ID: 1, Code: "01", Name: "Preliminares"}})
	store := &failingStore{Store: mem}
	e := newEnv(t, mem, store, nil)
	ctx := context.Background()

	l, err := e.schedule.CreateLine(ctx, scope, LineInput{CategoryID: 1, Amount: dec("10"), Span: span(mw(2026, 3, 1), mw(2026, 3, 2))})
	require.NoError(t, err)

	store.rescheduleErr = context.DeadlineExceeded
	discount := true
	newSpan := span(mw(2026, 4, 1), mw(2026, 4, 4))
	_, err = e.schedule.UpdateLine(ctx, l.ID, LinePatch{IsDiscount: &discount, Span: &newSpan})
	assert.ErrorIs(t, err, core.ErrPartialWrite)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got, err := mem.GetLine(ctx, l.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDiscount)
	require.NotNil(t, got.Activity)
	assert.Equal(t, mw(2026, 3, 2), got.Activity.Span.End)
}

func TestScheduleService_UpdateLineRejectsBadSpanBeforeWriting(t *testing.T) {
	e := newEnv(t, nil, nil, nil)
	ctx := context.Background()

	l, err := e.schedule.CreateLine(ctx, scope, LineInput{CategoryID: 1, Amount: dec("10"), Span: span(mw(2026, 3, 1), mw(2026, 3, 2))})
	require.NoError(t, err)

	amount := dec("999")
	backwards := span(mw(2026, 5, 1), mw(2026, 4, 4))
	_, err = e.schedule.UpdateLine(ctx, l.ID, LinePatch{Amount: &amount, Span: &backwards})
	assert.ErrorIs(t, err, core.ErrInvalidRange)

	got, err := e.mem.GetLine(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(got.Amount))
}

func TestScheduleService_ActivityLifecycle(t *testing.T) {
	e := newEnv(t, nil, nil, nil)
	ctx := context.Background()

	l, err := e.schedule.CreateLine(ctx, scope, LineInput{CategoryID: 2, Amount: dec("500"), Span: span(mw(2026, 3, 1), mw(2026, 3, 4))})
	require.NoError(t, err)
	actID := l.Activity.ID

	_, err = e.schedule.CreateActivity(ctx, l.ID, span(mw(2026, 4, 1), mw(2026, 4, 1)))
	assert.ErrorIs(t, err, core.ErrConflict)

	end := mw(2026, 2, 4)
	_, err = e.schedule.UpdateActivity(ctx, actID, ActivityPatch{End: &end})
	assert.ErrorIs(t, err, core.ErrInvalidRange)

	end = mw(2026, 4, 4)
	a, err := e.schedule.UpdateActivity(ctx, actID, ActivityPatch{End: &end})
	require.NoError(t, err)
	assert.Equal(t, 8, a.DurationWeeks)

	require.NoError(t, e.schedule.DeleteActivity(ctx, actID))
	_, err = e.mem.GetActivity(ctx, actID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// A span patch on a line without activity creates one.
	s := span(mw(2026, 5, 2), mw(2026, 5, 3))
	order := 3
	updated, err := e.schedule.UpdateLine(ctx, l.ID, LinePatch{Span: &s, Order: &order})
	require.NoError(t, err)
	require.NotNil(t, updated.Activity)
	assert.Equal(t, 2, updated.Activity.DurationWeeks)
	assert.Equal(t, 3, updated.Order)
	assert.Equal(t, "02 Cimentación", updated.Label())
}

func TestScheduleService_DeleteLineCascades(t *testing.T) {
	e := newEnv(t, nil, nil, nil)
	ctx := context.Background()

	l, err := e.schedule.CreateLine(ctx, scope, LineInput{CategoryID: 1, Amount: dec("10"), Span: span(mw(2026, 3, 1), mw(2026, 3, 1))})
	require.NoError(t, err)
	require.NoError(t, e.schedule.DeleteLine(ctx, l.ID))

	_, err = e.mem.GetActivity(ctx, l.Activity.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	calc, err := e.calc.Calculate(ctx, scope, fixedNow(), "es")
	require.NoError(t, err)
	assert.Empty(t, calc.Bars)
	assert.Empty(t, calc.Matrix.Categories)

	assert.ErrorIs(t, e.schedule.DeleteLine(ctx, l.ID), core.ErrNotFound)
}

func TestCalculationService_EvenSpread(t *testing.T) {
	e := newEnv(t, nil, nil, nil)
	ctx := context.Background()
	e.mem.SetBudget(scope, []core.CategoryAmount{{CategoryID: 1, Amount: dec("120000")}})

	_, err := e.schedule.CreateLine(ctx, scope, LineInput{CategoryID: 1, Amount: dec("120000"), Span: span(mw(2026, 3, 1), mw(2026, 5, 4))})
	require.NoError(t, err)

	c, err := e.calc.Calculate(ctx, scope, fixedNow(), "es")
	require.NoError(t, err)
	for _, m := range []int{3, 4, 5} {
		month := core.Month{Year: 2026, Month: m}
		assert.True(t, dec("40000").Equal(c.Calculations.Expenditure[month]), "month %d: %s", m, c.Calculations.Expenditure[month])
	}
	assert.InDelta(t, 100, c.Calculations.CumulativeProgress[core.Month{Year: 2026, Month: 5}], 1e-9)
	require.Len(t, c.Bars, 1)
	assert.Equal(t, 0, c.Bars[0].MonthIndex)
	assert.Equal(t, mw(2026, 3, 2), c.Reference)
}

func TestCalculationService_MissingBudgetIsWarned(t *testing.T) {
	e := newEnv(t, nil, nil, nil)
	ctx := context.Background()

	_, err := e.schedule.CreateLine(ctx, scope, LineInput{CategoryID: 2, Amount: dec("10"), Span: span(mw(2026, 3, 1), mw(2026, 3, 4))})
	require.NoError(t, err)

	c, err := e.calc.Calculate(ctx, scope, fixedNow(), "es")
	require.NoError(t, err)
	require.NotEmpty(t, c.Calculations.Warnings)
	assert.Equal(t, "missing_budget", string(c.Calculations.Warnings[0].Kind))
	require.Len(t, c.Matrix.Categories, 1)
	assert.False(t, c.Matrix.Categories[0].Budgeted)
}

func TestOverrideService_SaveThenDeleteRestoresComputed(t *testing.T) {
	e := newEnv(t, nil, nil, nil)
	ctx := context.Background()
	e.mem.SetBudget(scope, []core.CategoryAmount{{CategoryID: 1, Amount: dec("1000")}})
	_, err := e.schedule.CreateLine(ctx, scope, LineInput{CategoryID: 1, Amount: dec("1000"), Span: span(mw(2026, 3, 1), mw(2026, 4, 4))})
	require.NoError(t, err)

	before, err := e.calc.Calculate(ctx, scope, fixedNow(), "es")
	require.NoError(t, err)

	april := core.Month{Year: 2026, Month: 4}
	saved, err := e.overrides.SaveOverrides(ctx, scope, []core.MatrixOverride{
		{Month: april, Concept: "gastoPorMes", Value: "111", Supersedes: true},
		{Month: april, Concept: "gastoPorMes", Value: "750.50", Supersedes: true},
	}, "ana")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "750.50", saved[0].Value)
	assert.Equal(t, "ana", saved[0].UpdatedBy)
	assert.Equal(t, fixedNow(), saved[0].UpdatedAt)

	after, err := e.calc.Calculate(ctx, scope, fixedNow(), "es")
	require.NoError(t, err)
	assert.True(t, after.Matrix.HasOverrides)
	rowBefore, _ := before.Matrix.Row("gastoPorMes")
	rowAfter, ok := after.Matrix.Row("gastoPorMes")
	require.True(t, ok)
	for i, cell := range rowAfter.Cells {
		if cell.Month == april {
			amt, _ := cell.Display.Amount()
			assert.True(t, dec("750.50").Equal(amt))
			assert.True(t, cell.Overridden)
			continue
		}
		assert.True(t, rowBefore.Cells[i].Display.Equal(cell.Display), "month %s changed", cell.Month)
	}

	require.NoError(t, e.overrides.DeleteOverride(ctx, scope, april, "gastoPorMes"))
	reverted, err := e.calc.Calculate(ctx, scope, fixedNow(), "es")
	require.NoError(t, err)
	rowReverted, _ := reverted.Matrix.Row("gastoPorMes")
	for i := range rowReverted.Cells {
		assert.True(t, rowBefore.Cells[i].Display.Equal(rowReverted.Cells[i].Display))
	}
	assert.False(t, reverted.Matrix.HasOverrides)

	assert.ErrorIs(t, e.overrides.DeleteOverride(ctx, scope, april, "gastoPorMes"), core.ErrNotFound)
}

func TestOverrideService_RejectsWholeBatch(t *testing.T) {
	e := newEnv(t, nil, nil, nil)
	ctx := context.Background()
	march := core.Month{Year: 2026, Month: 3}

	_, err := e.overrides.SaveOverrides(ctx, scope, []core.MatrixOverride{
		{Month: march, Concept: "avanceParcial", Value: "12.5", Supersedes: true},
		{Month: march, Concept: "nope", Value: "1", Supersedes: true},
	}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidConcept)

	_, err = e.overrides.SaveOverrides(ctx, scope, []core.MatrixOverride{
		{Month: march, Concept: "gastoPorMes", Value: "abc", Supersedes: true},
	}, "")
	assert.True(t, core.IsValidation(err))

	list, err := e.overrides.ListOverrides(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, list)
}

type recordingPublisher struct {
	msgs []*amqp.ExportJobMessage
}

func (p *recordingPublisher) PublishExportJob(_ context.Context, msg *amqp.ExportJobMessage) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestExportService_RenderPDF(t *testing.T) {
	e := newEnv(t, nil, nil, nil)
	ctx := context.Background()
	e.mem.SetBudget(scope, []core.CategoryAmount{{CategoryID: 1, Amount: dec("1000")}})
	_, err := e.schedule.CreateLine(ctx, scope, LineInput{CategoryID: 1, Amount: dec("1000"), Span: span(mw(2026, 3, 1), mw(2026, 4, 4))})
	require.NoError(t, err)

	out, err := e.export.Render(ctx, ExportRequest{Ref: scope, ClientName: "ACME S.A.", ProjectName: "Casa 1"})
	require.NoError(t, err)
	assert.Equal(t, "Cronograma_ACME_S_A__Casa_1_2026-03-10.pdf", out.Filename)
	assert.Equal(t, "application/pdf", out.ContentType)
	assert.GreaterOrEqual(t, out.Pages, 1)
	assert.Equal(t, "%PDF", string(out.Content[:4]))
}

func TestExportService_RenderTimesOut(t *testing.T) {
	e := newEnv(t, nil, nil, nil)
	e.export.timeout = time.Nanosecond

	out, err := e.export.Render(context.Background(), ExportRequest{Ref: scope})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExportService_Enqueue(t *testing.T) {
	pub := &recordingPublisher{}
	e := newEnv(t, nil, nil, pub)

	msg, err := e.export.Enqueue(context.Background(), ExportRequest{Ref: scope, ProjectName: "Casa"}, "ana")
	require.NoError(t, err)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, msg.JobID, pub.msgs[0].JobID)
	assert.Equal(t, "pdf", msg.Format)
	assert.Equal(t, fixedNow(), msg.Reference)
	require.NoError(t, msg.Validate())

	req, err := RequestFromJob(msg)
	require.NoError(t, err)
	assert.Equal(t, scope, req.Ref)
	assert.Equal(t, "Casa", req.ProjectName)

	noBroker := newEnv(t, nil, nil, nil)
	_, err = noBroker.export.Enqueue(context.Background(), ExportRequest{Ref: scope}, "")
	assert.ErrorIs(t, err, ErrExportsDisabled)
}

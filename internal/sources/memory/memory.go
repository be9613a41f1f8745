package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"cronograma/internal/core"
	"cronograma/internal/sources"
)

var _ sources.Store = (*Store)(nil)

type overrideKey struct {
	planID  int64
	month   core.Month
	concept string
}

// Store keeps every entity in process. Reads return copies, so callers
// never observe a half-applied write.
type Store struct {
	mu sync.Mutex

	nextID     int64
	plans      map[core.PlanRef]core.Plan
	lines      map[int64]core.Line
	activities map[int64]core.Activity
	overrides  map[overrideKey]core.MatrixOverride

	categories []core.Category
	budget     map[core.PlanRef][]core.CategoryAmount
	payments   map[core.PlanRef][]core.Installment
}

func New(categories []core.Category) *Store {
	return &Store{
		plans:      map[core.PlanRef]core.Plan{},
		lines:      map[int64]core.Line{},
		activities: map[int64]core.Activity{},
		overrides:  map[overrideKey]core.MatrixOverride{},
		categories: dedupeCategories(categories),
		budget:     map[core.PlanRef][]core.CategoryAmount{},
		payments:   map[core.PlanRef][]core.Installment{},
	}
}

// NewFromFiles seeds the store from text files in base:
//
//	seed_categories.txt  id;code;name[;department]
//	seed_budget.txt      client;project;category_id;amount
//	seed_payments.txt    client;project;YYYY-MM-DD;amount
//
// Blank lines and lines starting with # are skipped. Malformed rows are
// reported with their file and line number.
func NewFromFiles(base string) (*Store, error) {
	var cats []core.Category
	err := eachRow(filepath.Join(base, "seed_categories.txt"), 3, func(f []string) error {
		id, err := strconv.ParseInt(f[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("category id %q", f[0])
		}
		c := core.Category{ID: id, Code: f[1], Name: f[2]}
		if len(f) > 3 {
			c.Department = f[3]
		}
		cats = append(cats, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(cats) == 0 {
		cats = DefaultCategories()
	}
	s := New(cats)

	err = eachRow(filepath.Join(base, "seed_budget.txt"), 4, func(f []string) error {
		id, err := strconv.ParseInt(f[2], 10, 64)
		if err != nil {
			return fmt.Errorf("category id %q", f[2])
		}
		amt, err := core.ParseAmount(f[3])
		if err != nil {
			return fmt.Errorf("amount %q: %w", f[3], err)
		}
		ref := core.PlanRef{ClientID: f[0], ProjectID: f[1]}
		s.budget[ref] = append(s.budget[ref], core.CategoryAmount{CategoryID: id, Amount: amt})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachRow(filepath.Join(base, "seed_payments.txt"), 4, func(f []string) error {
		due, err := time.Parse(time.DateOnly, f[2])
		if err != nil {
			return fmt.Errorf("due date %q", f[2])
		}
		amt, err := core.ParseAmount(f[3])
		if err != nil {
			return fmt.Errorf("amount %q: %w", f[3], err)
		}
		ref := core.PlanRef{ClientID: f[0], ProjectID: f[1]}
		s.payments[ref] = append(s.payments[ref], core.Installment{DueDate: due, Amount: amt})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SetBudget replaces the budget rows of a scope.
func (s *Store) SetBudget(ref core.PlanRef, rows []core.CategoryAmount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budget[ref] = slices.Clone(rows)
}

// SetInstallments replaces the payment plan of a scope.
func (s *Store) SetInstallments(ref core.PlanRef, list []core.Installment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[ref] = slices.Clone(list)
}

// Scopes lists every scope that has budget rows or installments, ordered
// by client then project.
func (s *Store) Scopes() []core.PlanRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[core.PlanRef]bool{}
	for ref := range s.budget {
		seen[ref] = true
	}
	for ref := range s.payments {
		seen[ref] = true
	}
	out := make([]core.PlanRef, 0, len(seen))
	for ref := range seen {
		out = append(out, ref)
	}
	slices.SortFunc(out, func(a, b core.PlanRef) int {
		if c := strings.Compare(a.ClientID, b.ClientID); c != 0 {
			return c
		}
		return strings.Compare(a.ProjectID, b.ProjectID)
	})
	return out
}

// BudgetRows returns the budget rows of a scope as loaded, before any
// per-category aggregation.
func (s *Store) BudgetRows(ref core.PlanRef) []core.CategoryAmount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.budget[ref])
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) GetOrCreatePlan(_ context.Context, defaults core.Plan) (core.Plan, error) {
	if err := defaults.Validate(); err != nil {
		return core.Plan{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := defaults.Ref()
	if p, ok := s.plans[ref]; ok {
		return p, nil
	}
	p := defaults
	p.ID = s.id()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.plans[ref] = p
	return p, nil
}

func (s *Store) GetPlan(_ context.Context, ref core.PlanRef) (core.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[ref]
	if !ok {
		return core.Plan{}, fmt.Errorf("plan %s: %w", ref, core.ErrNotFound)
	}
	return p, nil
}

func (s *Store) planExists(id int64) bool {
	for _, p := range s.plans {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) CreateLine(_ context.Context, l core.Line) (core.Line, error) {
	if err := l.Validate(); err != nil {
		return core.Line{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.planExists(l.PlanID) {
		return core.Line{}, fmt.Errorf("plan %d: %w", l.PlanID, core.ErrNotFound)
	}
	l.ID = s.id()
	l.Activity = nil
	s.lines[l.ID] = l
	return l, nil
}

func (s *Store) GetLine(_ context.Context, id int64) (core.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lines[id]
	if !ok {
		return core.Line{}, fmt.Errorf("line %d: %w", id, core.ErrNotFound)
	}
	return s.withActivity(l), nil
}

func (s *Store) UpdateLine(_ context.Context, l core.Line) (core.Line, error) {
	if err := l.Validate(); err != nil {
		return core.Line{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.lines[l.ID]
	if !ok {
		return core.Line{}, fmt.Errorf("line %d: %w", l.ID, core.ErrNotFound)
	}
	l.PlanID = cur.PlanID
	l.Activity = nil
	s.lines[l.ID] = l
	return s.withActivity(l), nil
}

func (s *Store) DeleteLine(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lines[id]; !ok {
		return fmt.Errorf("line %d: %w", id, core.ErrNotFound)
	}
	delete(s.lines, id)
	for aid, a := range s.activities {
		if a.LineID == id {
			delete(s.activities, aid)
		}
	}
	return nil
}

func (s *Store) ListLines(_ context.Context, planID int64) ([]core.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Line, 0)
	for _, l := range s.lines {
		if l.PlanID == planID {
			out = append(out, s.withActivity(l))
		}
	}
	slices.SortFunc(out, func(a, b core.Line) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		return int(a.ID - b.ID)
	})
	return out, nil
}

// withActivity attaches a copy of the line's activity. Callers hold mu.
func (s *Store) withActivity(l core.Line) core.Line {
	for _, a := range s.activities {
		if a.LineID == l.ID {
			l.Activity = &a
			return l
		}
	}
	l.Activity = nil
	return l
}

func (s *Store) CreateActivity(_ context.Context, a core.Activity) (core.Activity, error) {
	if err := a.Span.Validate(); err != nil {
		return core.Activity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lines[a.LineID]; !ok {
		return core.Activity{}, fmt.Errorf("line %d: %w", a.LineID, core.ErrNotFound)
	}
	for _, cur := range s.activities {
		if cur.LineID == a.LineID {
			return core.Activity{}, fmt.Errorf("line %d already has an activity: %w", a.LineID, core.ErrConflict)
		}
	}
	a.ID = s.id()
	a.DurationWeeks = a.Span.Weeks()
	s.activities[a.ID] = a
	return a, nil
}

func (s *Store) GetActivity(_ context.Context, id int64) (core.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[id]
	if !ok {
		return core.Activity{}, fmt.Errorf("activity %d: %w", id, core.ErrNotFound)
	}
	return a, nil
}

func (s *Store) UpdateActivity(_ context.Context, a core.Activity) (core.Activity, error) {
	if err := a.Span.Validate(); err != nil {
		return core.Activity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.activities[a.ID]
	if !ok {
		return core.Activity{}, fmt.Errorf("activity %d: %w", a.ID, core.ErrNotFound)
	}
	cur.Span = a.Span
	cur.DurationWeeks = a.Span.Weeks()
	s.activities[a.ID] = cur
	return cur, nil
}

func (s *Store) DeleteActivity(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.activities[id]; !ok {
		return fmt.Errorf("activity %d: %w", id, core.ErrNotFound)
	}
	delete(s.activities, id)
	return nil
}

func (s *Store) UpsertOverrides(_ context.Context, planID int64, list []core.MatrixOverride) error {
	for _, o := range list {
		if err := o.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.planExists(planID) {
		return fmt.Errorf("plan %d: %w", planID, core.ErrNotFound)
	}
	for _, o := range list {
		o.PlanID = planID
		if o.UpdatedAt.IsZero() {
			o.UpdatedAt = time.Now().UTC()
		}
		s.overrides[overrideKey{planID, o.Month, o.Concept}] = o
	}
	return nil
}

func (s *Store) DeleteOverride(_ context.Context, planID int64, month core.Month, concept string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := overrideKey{planID, month, concept}
	if _, ok := s.overrides[k]; !ok {
		return fmt.Errorf("override %s/%s: %w", month.Token(), concept, core.ErrNotFound)
	}
	delete(s.overrides, k)
	return nil
}

func (s *Store) ListOverrides(_ context.Context, planID int64) ([]core.MatrixOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.MatrixOverride, 0)
	for k, o := range s.overrides {
		if k.planID == planID {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b core.MatrixOverride) int {
		if c := a.Month.Compare(b.Month); c != 0 {
			return c
		}
		return strings.Compare(a.Concept, b.Concept)
	})
	return out, nil
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.categories), nil
}

func (s *Store) BudgetTotals(_ context.Context, ref core.PlanRef) (core.BudgetTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.NewBudgetTotals(s.budget[ref]), nil
}

func (s *Store) Installments(_ context.Context, ref core.PlanRef) ([]core.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.payments[ref])
	slices.SortStableFunc(out, func(a, b core.Installment) int { return a.DueDate.Compare(b.DueDate) })
	return out, nil
}

// DefaultCategories is the catalog used when no seed file provides one.
func DefaultCategories() []core.Category {
	return []core.Category{
		{ID: 1, Code: "01", Name: "Preliminares"},
		{ID: 2, Code: "02", Name: "Cimentación"},
		{ID: 3, Code: "03", Name: "Estructura"},
		{ID: 4, Code: "04", Name: "Instalaciones"},
		{ID: 5, Code: "05", Name: "Acabados"},
	}
}

// eachRow calls fn with the ';'-separated fields of every data line of path.
// A missing file is not an error.
func eachRow(path string, minFields int, fn func([]string) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ";")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if len(fields) < minFields {
			return fmt.Errorf("%s:%d: expected %d fields, got %d", filepath.Base(path), n, minFields, len(fields))
		}
		if err := fn(fields); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), n, err)
		}
	}
	return sc.Err()
}

func dedupeCategories(in []core.Category) []core.Category {
	seen := map[int64]struct{}{}
	out := make([]core.Category, 0, len(in))
	for _, c := range in {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cronograma/internal/core"
	"cronograma/internal/sources"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) dsn(s string) string {
	if d != SQLite || strings.Contains(s, "_pragma=") {
		return s
	}
	sep := "?"
	if strings.Contains(s, "?") {
		sep = "&"
	}
	return s + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// rebind rewrites ? placeholders to $n for postgres.
func (d Dialect) rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Repository is the SQL implementation of every store port.
type Repository struct {
	db      *sql.DB
	dialect Dialect
}

var _ sources.Store = (*Repository)(nil)

func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(SQLite, dbPath)
}

func NewPostgresRepository(dsn string) (*Repository, error) {
	return open(Postgres, dsn)
}

func open(dialect Dialect, dsn string) (*Repository, error) {
	db, err := sql.Open(dialect.driverName(), dialect.dsn(dsn))
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == SQLite {
		// One writer at a time keeps SQLITE_BUSY out of concurrent requests.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Repository{db: db, dialect: dialect}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) q(query string) string { return r.dialect.rebind(query) }

func (r *Repository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, core.ErrNotFound)
	}
	return fmt.Errorf("get %s %v: %w", what, id, err)
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// ---- plans

const planColumns = `id, client_id, project_id, start_month, months_count, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(s scanner) (core.Plan, error) {
	var (
		p       core.Plan
		start   string
		created int64
	)
	if err := s.Scan(&p.ID, &p.ClientID, &p.ProjectID, &start, &p.MonthsCount, &created); err != nil {
		return core.Plan{}, err
	}
	m, err := core.ParseMonth(start)
	if err != nil {
		return core.Plan{}, fmt.Errorf("plan %d start month: %w", p.ID, err)
	}
	p.StartMonth = m
	p.CreatedAt = fromMillis(created)
	return p, nil
}

// GetOrCreatePlan relies on the (client_id, project_id) unique key: the
// insert is a no-op when another writer got there first.
func (r *Repository) GetOrCreatePlan(ctx context.Context, defaults core.Plan) (core.Plan, error) {
	if err := defaults.Validate(); err != nil {
		return core.Plan{}, err
	}
	if defaults.CreatedAt.IsZero() {
		defaults.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, r.q(`INSERT INTO plans (client_id, project_id, start_month, months_count, created_at)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT (client_id, project_id) DO NOTHING`),
		defaults.ClientID, defaults.ProjectID, defaults.StartMonth.Token(), defaults.MonthsCount, toMillis(defaults.CreatedAt))
	if err != nil {
		return core.Plan{}, fmt.Errorf("insert plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.InfoContext(ctx, "Plan created", "client_id", defaults.ClientID, "project_id", defaults.ProjectID)
	}
	return r.GetPlan(ctx, defaults.Ref())
}

func (r *Repository) GetPlan(ctx context.Context, ref core.PlanRef) (core.Plan, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT `+planColumns+` FROM plans WHERE client_id = ? AND project_id = ?`),
		ref.ClientID, ref.ProjectID)
	p, err := scanPlan(row)
	if err != nil {
		return core.Plan{}, notFound(err, "plan", ref)
	}
	return p, nil
}

// ---- lines

const lineSelect = `SELECT l.id, l.plan_id, l.category_id, COALESCE(c.code, ''), COALESCE(c.name, ''),
	l.amount, l.is_discount, l.sort_order,
	a.id, a.start_month, a.start_week, a.end_month, a.end_week, a.duration_weeks
	FROM lines l
	LEFT JOIN categories c ON c.id = l.category_id
	LEFT JOIN activities a ON a.line_id = l.id`

func scanLine(s scanner) (core.Line, error) {
	var (
		l                    core.Line
		aID, sWeek, eWeek, d sql.NullInt64
		sMonth, eMonth       sql.NullString
	)
	err := s.Scan(&l.ID, &l.PlanID, &l.CategoryID, &l.CategoryCode, &l.CategoryLabel,
		&l.Amount, &l.IsDiscount, &l.Order,
		&aID, &sMonth, &sWeek, &eMonth, &eWeek, &d)
	if err != nil {
		return core.Line{}, err
	}
	if aID.Valid {
		a, err := activityFrom(aID.Int64, l.ID, sMonth.String, int(sWeek.Int64), eMonth.String, int(eWeek.Int64))
		if err != nil {
			return core.Line{}, err
		}
		l.Activity = &a
	}
	return l, nil
}

func (r *Repository) CreateLine(ctx context.Context, l core.Line) (core.Line, error) {
	if err := l.Validate(); err != nil {
		return core.Line{}, err
	}
	var id int64
	err := r.db.QueryRowContext(ctx, r.q(`INSERT INTO lines (plan_id, category_id, amount, is_discount, sort_order)
		VALUES (?, ?, ?, ?, ?) RETURNING id`),
		l.PlanID, l.CategoryID, l.Amount.StringFixed(2), l.IsDiscount, l.Order).Scan(&id)
	if err != nil {
		return core.Line{}, fmt.Errorf("insert line: %w", err)
	}
	slog.InfoContext(ctx, "Line saved", "id", id, "plan_id", l.PlanID, "category_id", l.CategoryID)
	return r.GetLine(ctx, id)
}

func (r *Repository) GetLine(ctx context.Context, id int64) (core.Line, error) {
	l, err := scanLine(r.db.QueryRowContext(ctx, r.q(lineSelect+` WHERE l.id = ?`), id))
	if err != nil {
		return core.Line{}, notFound(err, "line", id)
	}
	return l, nil
}

func (r *Repository) UpdateLine(ctx context.Context, l core.Line) (core.Line, error) {
	if err := l.Validate(); err != nil {
		return core.Line{}, err
	}
	res, err := r.db.ExecContext(ctx, r.q(`UPDATE lines SET category_id = ?, amount = ?, is_discount = ?, sort_order = ? WHERE id = ?`),
		l.CategoryID, l.Amount.StringFixed(2), l.IsDiscount, l.Order, l.ID)
	if err != nil {
		return core.Line{}, fmt.Errorf("update line %d: %w", l.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Line{}, fmt.Errorf("line %d: %w", l.ID, core.ErrNotFound)
	}
	return r.GetLine(ctx, l.ID)
}

// DeleteLine removes the activity and the line in one transaction.
func (r *Repository) DeleteLine(ctx context.Context, id int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.q(`DELETE FROM activities WHERE line_id = ?`), id); err != nil {
			return fmt.Errorf("delete activity of line %d: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, r.q(`DELETE FROM lines WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete line %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("line %d: %w", id, core.ErrNotFound)
		}
		return nil
	})
}

func (r *Repository) ListLines(ctx context.Context, planID int64) ([]core.Line, error) {
	rows, err := r.db.QueryContext(ctx, r.q(lineSelect+` WHERE l.plan_id = ? ORDER BY l.sort_order, l.id`), planID)
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}
	defer rows.Close()
	out := make([]core.Line, 0)
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ---- activities

func activityFrom(id, lineID int64, sMonth string, sWeek int, eMonth string, eWeek int) (core.Activity, error) {
	start, err := core.ParseMonth(sMonth)
	if err != nil {
		return core.Activity{}, fmt.Errorf("activity %d start: %w", id, err)
	}
	end, err := core.ParseMonth(eMonth)
	if err != nil {
		return core.Activity{}, fmt.Errorf("activity %d end: %w", id, err)
	}
	span := core.Span{
		Start: core.MonthWeek{Month: start, Week: sWeek},
		End:   core.MonthWeek{Month: end, Week: eWeek},
	}
	return core.Activity{ID: id, LineID: lineID, Span: span, DurationWeeks: span.Weeks()}, nil
}

func (r *Repository) CreateActivity(ctx context.Context, a core.Activity) (core.Activity, error) {
	if err := a.Span.Validate(); err != nil {
		return core.Activity{}, err
	}
	a.DurationWeeks = a.Span.Weeks()
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var lines, existing int
		if err := tx.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM lines WHERE id = ?`), a.LineID).Scan(&lines); err != nil {
			return fmt.Errorf("check line %d: %w", a.LineID, err)
		}
		if lines == 0 {
			return fmt.Errorf("line %d: %w", a.LineID, core.ErrNotFound)
		}
		if err := tx.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM activities WHERE line_id = ?`), a.LineID).Scan(&existing); err != nil {
			return fmt.Errorf("check activity of line %d: %w", a.LineID, err)
		}
		if existing > 0 {
			return fmt.Errorf("line %d already has an activity: %w", a.LineID, core.ErrConflict)
		}
		err := tx.QueryRowContext(ctx, r.q(`INSERT INTO activities (line_id, start_month, start_week, end_month, end_week, duration_weeks)
			VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
			a.LineID, a.Span.Start.Month.Token(), a.Span.Start.Week, a.Span.End.Month.Token(), a.Span.End.Week, a.DurationWeeks).Scan(&a.ID)
		if err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Activity{}, err
	}
	return a, nil
}

func (r *Repository) GetActivity(ctx context.Context, id int64) (core.Activity, error) {
	var (
		lineID         int64
		sMonth, eMonth string
		sWeek, eWeek   int
	)
	err := r.db.QueryRowContext(ctx, r.q(`SELECT line_id, start_month, start_week, end_month, end_week FROM activities WHERE id = ?`), id).
		Scan(&lineID, &sMonth, &sWeek, &eMonth, &eWeek)
	if err != nil {
		return core.Activity{}, notFound(err, "activity", id)
	}
	return activityFrom(id, lineID, sMonth, sWeek, eMonth, eWeek)
}

func (r *Repository) UpdateActivity(ctx context.Context, a core.Activity) (core.Activity, error) {
	if err := a.Span.Validate(); err != nil {
		return core.Activity{}, err
	}
	res, err := r.db.ExecContext(ctx, r.q(`UPDATE activities SET start_month = ?, start_week = ?, end_month = ?, end_week = ?, duration_weeks = ? WHERE id = ?`),
		a.Span.Start.Month.Token(), a.Span.Start.Week, a.Span.End.Month.Token(), a.Span.End.Week, a.Span.Weeks(), a.ID)
	if err != nil {
		return core.Activity{}, fmt.Errorf("update activity %d: %w", a.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Activity{}, fmt.Errorf("activity %d: %w", a.ID, core.ErrNotFound)
	}
	return r.GetActivity(ctx, a.ID)
}

func (r *Repository) DeleteActivity(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM activities WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete activity %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("activity %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// ---- overrides

func (r *Repository) UpsertOverrides(ctx context.Context, planID int64, list []core.MatrixOverride) error {
	for _, o := range list {
		if err := o.Validate(); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.q(`INSERT INTO matrix_overrides (plan_id, month, concept, value, supersedes, updated_at, updated_by)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (plan_id, month, concept) DO UPDATE SET
				value = excluded.value, supersedes = excluded.supersedes,
				updated_at = excluded.updated_at, updated_by = excluded.updated_by`))
		if err != nil {
			return fmt.Errorf("prepare override upsert: %w", err)
		}
		defer stmt.Close()
		for _, o := range list {
			at := o.UpdatedAt
			if at.IsZero() {
				at = now
			}
			if _, err := stmt.ExecContext(ctx, planID, o.Month.Token(), o.Concept, o.Value, o.Supersedes, toMillis(at), o.UpdatedBy); err != nil {
				return fmt.Errorf("upsert override %s/%s: %w", o.Month.Token(), o.Concept, err)
			}
		}
		return nil
	})
}

func (r *Repository) DeleteOverride(ctx context.Context, planID int64, month core.Month, concept string) error {
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM matrix_overrides WHERE plan_id = ? AND month = ? AND concept = ?`),
		planID, month.Token(), concept)
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("override %s/%s: %w", month.Token(), concept, core.ErrNotFound)
	}
	return nil
}

func (r *Repository) ListOverrides(ctx context.Context, planID int64) ([]core.MatrixOverride, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT month, concept, value, supersedes, updated_at, updated_by
		FROM matrix_overrides WHERE plan_id = ? ORDER BY month, concept`), planID)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()
	out := make([]core.MatrixOverride, 0)
	for rows.Next() {
		var (
			o     core.MatrixOverride
			month string
			at    int64
		)
		if err := rows.Scan(&month, &o.Concept, &o.Value, &o.Supersedes, &at, &o.UpdatedBy); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		m, err := core.ParseMonth(month)
		if err != nil {
			return nil, fmt.Errorf("override month %q: %w", month, err)
		}
		o.PlanID, o.Month, o.UpdatedAt = planID, m, fromMillis(at)
		out = append(out, o)
	}
	return out, rows.Err()
}

// ---- reference data

func (r *Repository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, code, name, department FROM categories ORDER BY code, id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	out := make([]core.Category, 0)
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Department); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) BudgetTotals(ctx context.Context, ref core.PlanRef) (core.BudgetTotals, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT category_id, amount FROM budget_entries WHERE client_id = ? AND project_id = ?`),
		ref.ClientID, ref.ProjectID)
	if err != nil {
		return core.BudgetTotals{}, fmt.Errorf("read budget: %w", err)
	}
	defer rows.Close()
	var list []core.CategoryAmount
	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.CategoryID, &ca.Amount); err != nil {
			return core.BudgetTotals{}, fmt.Errorf("scan budget entry: %w", err)
		}
		list = append(list, ca)
	}
	if err := rows.Err(); err != nil {
		return core.BudgetTotals{}, err
	}
	return core.NewBudgetTotals(list), nil
}

func (r *Repository) Installments(ctx context.Context, ref core.PlanRef) ([]core.Installment, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT due_date, amount FROM installments WHERE client_id = ? AND project_id = ? ORDER BY due_date, id`),
		ref.ClientID, ref.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("read installments: %w", err)
	}
	defer rows.Close()
	out := make([]core.Installment, 0)
	for rows.Next() {
		var (
			due string
			in  core.Installment
		)
		if err := rows.Scan(&due, &in.Amount); err != nil {
			return nil, fmt.Errorf("scan installment: %w", err)
		}
		t, err := time.Parse(time.DateOnly, due)
		if err != nil {
			return nil, fmt.Errorf("installment due date %q: %w", due, err)
		}
		in.DueDate = t
		out = append(out, in)
	}
	return out, rows.Err()
}

// ImportCategories upserts the catalog.
func (r *Repository) ImportCategories(ctx context.Context, list []core.Category) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range list {
			_, err := tx.ExecContext(ctx, r.q(`INSERT INTO categories (id, code, name, department) VALUES (?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET code = excluded.code, name = excluded.name, department = excluded.department`),
				c.ID, c.Code, c.Name, c.Department)
			if err != nil {
				return fmt.Errorf("import category %d: %w", c.ID, err)
			}
		}
		return nil
	})
}

// ReplaceBudget swaps the budget entries of one scope.
func (r *Repository) ReplaceBudget(ctx context.Context, ref core.PlanRef, rows []core.CategoryAmount) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.q(`DELETE FROM budget_entries WHERE client_id = ? AND project_id = ?`), ref.ClientID, ref.ProjectID); err != nil {
			return fmt.Errorf("clear budget: %w", err)
		}
		for _, ca := range rows {
			if _, err := tx.ExecContext(ctx, r.q(`INSERT INTO budget_entries (client_id, project_id, category_id, amount) VALUES (?, ?, ?, ?)`),
				ref.ClientID, ref.ProjectID, ca.CategoryID, ca.Amount.StringFixed(2)); err != nil {
				return fmt.Errorf("insert budget entry: %w", err)
			}
		}
		return nil
	})
}

// ReplaceInstallments swaps the payment plan of one scope.
func (r *Repository) ReplaceInstallments(ctx context.Context, ref core.PlanRef, list []core.Installment) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.q(`DELETE FROM installments WHERE client_id = ? AND project_id = ?`), ref.ClientID, ref.ProjectID); err != nil {
			return fmt.Errorf("clear installments: %w", err)
		}
		for _, in := range list {
			if _, err := tx.ExecContext(ctx, r.q(`INSERT INTO installments (client_id, project_id, due_date, amount) VALUES (?, ?, ?, ?)`),
				ref.ClientID, ref.ProjectID, in.DueDate.Format(time.DateOnly), in.Amount.StringFixed(2)); err != nil {
				return fmt.Errorf("insert installment: %w", err)
			}
		}
		return nil
	})
}

package google

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"cronograma/internal/core"

	"github.com/shopspring/decimal"
)

// Header aliases, matched case-insensitively. Spanish names come first as
// that is how the planning workbooks are written.
var (
	hdrClient     = []string{"Cliente", "Client"}
	hdrProject    = []string{"Proyecto", "Project"}
	hdrCategory   = []string{"Mayor", "Category"}
	hdrAmount     = []string{"Monto", "Importe", "Amount"}
	hdrDue        = []string{"Fecha", "Vencimiento", "Due"}
	hdrID         = []string{"ID", "Id"}
	hdrCode       = []string{"Clave", "Code"}
	hdrName       = []string{"Nombre", "Name"}
	hdrDepartment = []string{"Departamento", "Department"}
)

var dateLayouts = []string{time.DateOnly, "02/01/2006", "2/1/2006"}

type header struct {
	cols []string
}

func (h header) col(aliases []string) int {
	for _, a := range aliases {
		if i := indexOf(h.cols, a); i >= 0 {
			return i
		}
	}
	return -1
}

// require resolves every alias group or reports which are missing.
func (h header) require(groups ...[]string) ([]int, error) {
	idx := make([]int, len(groups))
	var missing []string
	for i, g := range groups {
		idx[i] = h.col(g)
		if idx[i] == -1 {
			missing = append(missing, g[0])
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unexpected sheet header: missing %s; got headers=%v", strings.Join(missing, ","), h.cols)
	}
	return idx, nil
}

// parseBudget keeps the rows of the given scope. Rows with a blank or
// non-numeric category are skipped; a bad amount is an error.
func parseBudget(values [][]interface{}, ref core.PlanRef) ([]core.CategoryAmount, error) {
	if len(values) == 0 {
		return nil, nil
	}
	idx, err := header{toStrings(values[0])}.require(hdrClient, hdrProject, hdrCategory, hdrAmount)
	if err != nil {
		return nil, err
	}
	var out []core.CategoryAmount
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		if !inScope(row, idx[0], idx[1], ref) {
			continue
		}
		id, err := strconv.ParseInt(safeGet(row, idx[2]), 10, 64)
		if err != nil {
			continue
		}
		amt, err := parseAmountCell(safeGet(row, idx[3]))
		if err != nil {
			return nil, fmt.Errorf("budget row %d: %w", i+1, err)
		}
		out = append(out, core.CategoryAmount{CategoryID: id, Amount: amt})
	}
	return out, nil
}

// parseInstallments keeps the rows of the given scope ordered by due date.
func parseInstallments(values [][]interface{}, ref core.PlanRef) ([]core.Installment, error) {
	if len(values) == 0 {
		return nil, nil
	}
	idx, err := header{toStrings(values[0])}.require(hdrClient, hdrProject, hdrDue, hdrAmount)
	if err != nil {
		return nil, err
	}
	var out []core.Installment
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		if !inScope(row, idx[0], idx[1], ref) {
			continue
		}
		due, err := parseDate(safeGet(row, idx[2]))
		if err != nil {
			return nil, fmt.Errorf("payment row %d: %w", i+1, err)
		}
		amt, err := parseAmountCell(safeGet(row, idx[3]))
		if err != nil {
			return nil, fmt.Errorf("payment row %d: %w", i+1, err)
		}
		out = append(out, core.Installment{DueDate: due, Amount: amt})
	}
	slices.SortStableFunc(out, func(a, b core.Installment) int { return a.DueDate.Compare(b.DueDate) })
	return out, nil
}

func parseCategories(values [][]interface{}) ([]core.Category, error) {
	if len(values) == 0 {
		return nil, nil
	}
	h := header{toStrings(values[0])}
	idx, err := h.require(hdrID, hdrName)
	if err != nil {
		return nil, err
	}
	colCode, colDept := h.col(hdrCode), h.col(hdrDepartment)
	seen := map[int64]bool{}
	var out []core.Category
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		id, err := strconv.ParseInt(safeGet(row, idx[0]), 10, 64)
		if err != nil || id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, core.Category{
			ID:         id,
			Code:       safeGet(row, colCode),
			Name:       safeGet(row, idx[1]),
			Department: safeGet(row, colDept),
		})
	}
	return out, nil
}

func inScope(row []string, colClient, colProject int, ref core.PlanRef) bool {
	return strings.EqualFold(safeGet(row, colClient), ref.ClientID) &&
		strings.EqualFold(safeGet(row, colProject), ref.ProjectID)
}

// parseAmountCell accepts formatted currency ("$1,234.50") as well as raw numbers.
func parseAmountCell(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, nil
	}
	return core.ParseAmount(s)
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch n := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(n, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

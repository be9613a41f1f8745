// This file implements decoding and validation of request paths, queries and
// JSON bodies into service inputs.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cronograma/internal/core"
	"cronograma/internal/services"
)

const maxBodyBytes = 1 << 20

// requestError is a malformed request: unreadable body, bad path segment or
// query value. It always maps to 400.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// decodeJSON reads exactly one JSON value into v. Unknown fields are
// rejected so typos do not silently drop a change.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return badRequest("request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		}
		return badRequest("invalid JSON body: %s", err)
	}
	if dec.More() {
		return badRequest("request body must hold a single JSON value")
	}
	return nil
}

// planRef reads the {client}/{project} path segments.
func planRef(r *http.Request) (core.PlanRef, error) {
	ref := core.PlanRef{
		ClientID:  strings.TrimSpace(sanitizeInput(r.PathValue("client"))),
		ProjectID: strings.TrimSpace(sanitizeInput(r.PathValue("project"))),
	}
	if err := ref.Validate(); err != nil {
		return core.PlanRef{}, err
	}
	return ref, nil
}

// pathID reads a positive integer path segment.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return n, nil
}

// referenceTime reads ?ref=YYYY-MM-DD, the date bar status is measured
// against. It defaults to now.
func referenceTime(r *http.Request, now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("ref"))
	if raw == "" {
		return now, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, badRequest("invalid ref %q, want YYYY-MM-DD", raw)
	}
	return t, nil
}

// amountField accepts an amount either as a JSON number or as a string in
// any of the grouping styles ParseAmount understands.
type amountField struct {
	raw string
}

func (a *amountField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		a.raw = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	a.raw = n.String()
	return nil
}

func (a amountField) decimal() (decimal.Decimal, error) {
	d, err := core.ParseAmount(a.raw)
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: "amount", Reason: fmt.Sprintf("invalid amount %q", a.raw), Err: core.ErrInvalidAmount}
	}
	return d, nil
}

type (
	lineRequest struct {
		CategoryID int64          `json:"category_id"`
		Amount     amountField    `json:"amount"`
		IsDiscount bool           `json:"is_discount"`
		Order      int            `json:"order"`
		Start      core.MonthWeek `json:"start"`
		End        core.MonthWeek `json:"end"`
	}

	linePatchRequest struct {
		CategoryID *int64          `json:"category_id"`
		Amount     *amountField    `json:"amount"`
		IsDiscount *bool           `json:"is_discount"`
		Order      *int            `json:"order"`
		Start      *core.MonthWeek `json:"start"`
		End        *core.MonthWeek `json:"end"`
	}

	spanRequest struct {
		Start core.MonthWeek `json:"start"`
		End   core.MonthWeek `json:"end"`
	}

	activityPatchRequest struct {
		Start *core.MonthWeek `json:"start"`
		End   *core.MonthWeek `json:"end"`
	}

	overrideEntry struct {
		Month      core.Month `json:"month"`
		Concept    string     `json:"concept"`
		Value      string     `json:"value"`
		Supersedes *bool      `json:"supersedes"`
	}

	overridesRequest struct {
		Overrides []overrideEntry `json:"overrides"`
		UpdatedBy string          `json:"updated_by"`
	}

	exportRequest struct {
		Format      string `json:"format"`
		ClientName  string `json:"client_name"`
		ProjectName string `json:"project_name"`
		Reference   string `json:"reference"`
		RequestedBy string `json:"requested_by"`
	}
)

func (req lineRequest) input() (services.LineInput, error) {
	amount, err := req.Amount.decimal()
	if err != nil {
		return services.LineInput{}, err
	}
	return services.LineInput{
		CategoryID: req.CategoryID,
		Amount:     amount,
		IsDiscount: req.IsDiscount,
		Order:      req.Order,
		Span:       core.Span{Start: req.Start, End: req.End},
	}, nil
}

// patch converts the request. A span change needs both ends.
func (req linePatchRequest) patch() (services.LinePatch, error) {
	p := services.LinePatch{
		CategoryID: req.CategoryID,
		IsDiscount: req.IsDiscount,
		Order:      req.Order,
	}
	if req.Amount != nil {
		amount, err := req.Amount.decimal()
		if err != nil {
			return services.LinePatch{}, err
		}
		p.Amount = &amount
	}
	switch {
	case req.Start != nil && req.End != nil:
		p.Span = &core.Span{Start: *req.Start, End: *req.End}
	case req.Start != nil || req.End != nil:
		return services.LinePatch{}, badRequest("start and end must be sent together")
	}
	return p, nil
}

// entries converts the batch. Supersedes defaults to true: a manual value
// replaces the computed one unless the caller says otherwise.
func (req overridesRequest) entries() []core.MatrixOverride {
	out := make([]core.MatrixOverride, 0, len(req.Overrides))
	for _, e := range req.Overrides {
		supersedes := true
		if e.Supersedes != nil {
			supersedes = *e.Supersedes
		}
		out = append(out, core.MatrixOverride{
			Month:      e.Month,
			Concept:    sanitizeInput(e.Concept),
			Value:      sanitizeInput(e.Value),
			Supersedes: supersedes,
		})
	}
	return out
}

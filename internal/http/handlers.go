package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cronograma/internal/core"
	"cronograma/internal/log"
	"cronograma/internal/report"
	"cronograma/internal/services"
)

const (
	defaultMonthCount = 12
	maxMonthCount     = 120
	readyTimeout      = 2 * time.Second
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

type monthView struct {
	Month core.Month `json:"month"`
	Label string     `json:"label"`
	Short string     `json:"short"`
}

// handleMonths lists count months starting offset months from the current one.
func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	count, err := queryInt(r, "count", defaultMonthCount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if count < 1 || count > maxMonthCount {
		writeError(w, r, badRequest("count must be between 1 and %d", maxMonthCount))
		return
	}

	loc := s.localeFor(r)
	current := core.MonthOf(s.now())
	months := core.GenerateMonthRange(current, offset, count)
	out := make([]monthView, len(months))
	for i, m := range months {
		out[i] = monthView{Month: m, Label: loc.MonthLabel(m), Short: loc.ShortMonthLabel(m)}
	}
	NewResponse().JSON(map[string]any{"current": current, "months": out}).Write(w)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	ref, err := planRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	plan, lines, err := s.schedule.PlanLines(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(map[string]any{"plan": plan, "lines": lines}).Write(w)
}

func (s *Server) handleCreateLine(w http.ResponseWriter, r *http.Request) {
	ref, err := planRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req lineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	line, err := s.schedule.CreateLine(r.Context(), ref, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(line).Write(w)
}

func (s *Server) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req linePatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		writeError(w, r, err)
		return
	}
	line, err := s.schedule.UpdateLine(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(line).Write(w)
}

func (s *Server) handleDeleteLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.schedule.DeleteLine(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleCreateActivity(w http.ResponseWriter, r *http.Request) {
	lineID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req spanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	act, err := s.schedule.CreateActivity(r.Context(), lineID, core.Span{Start: req.Start, End: req.End})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(act).Write(w)
}

func (s *Server) handleUpdateActivity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req activityPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	act, err := s.schedule.UpdateActivity(r.Context(), id, services.ActivityPatch{Start: req.Start, End: req.End})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(act).Write(w)
}

func (s *Server) handleDeleteActivity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.schedule.DeleteActivity(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

// handleCalculations recomputes the plan; ?ref=YYYY-MM-DD moves the date
// bar status is measured against.
func (s *Server) handleCalculations(w http.ResponseWriter, r *http.Request) {
	ref, err := planRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	at, err := referenceTime(r, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	calc, err := s.calc.Calculate(r.Context(), ref, at, s.localeFor(r).Lang())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(calc).Write(w)
}

func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	ref, err := planRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.overrides.ListOverrides(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(map[string]any{"overrides": list}).Write(w)
}

func (s *Server) handleSaveOverrides(w http.ResponseWriter, r *http.Request) {
	ref, err := planRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req overridesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.overrides.SaveOverrides(r.Context(), ref, req.entries(), s.requestedBy(r, req.UpdatedBy))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(map[string]any{"overrides": saved}).Write(w)
}

func (s *Server) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	ref, err := planRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	month, err := core.ParseMonth(r.PathValue("month"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	concept := sanitizeInput(r.PathValue("concept"))
	if concept == "" {
		writeError(w, r, badRequest("concept is required"))
		return
	}
	if err := s.overrides.DeleteOverride(r.Context(), ref, month, concept); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

// handleReport streams the finished document. Display names come from
// ?client_name= and ?project_name=, falling back to the path ids.
func (s *Server) handleReport(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := planRef(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		f, err := report.ParseFormat(format)
		if err != nil {
			writeError(w, r, badRequest("%s", err))
			return
		}
		at, err := referenceTime(r, s.now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		q := r.URL.Query()
		doc, err := s.export.Render(r.Context(), services.ExportRequest{
			Ref:         ref,
			ClientName:  sanitizeInput(q.Get("client_name")),
			ProjectName: sanitizeInput(q.Get("project_name")),
			Format:      f,
			Reference:   at,
			Lang:        s.localeFor(r).Lang(),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := NewResponse().Body(doc.Content, doc.ContentType).Attachment(doc.Filename)
		if doc.Pages > 0 {
			resp.Header("X-Report-Pages", strconv.Itoa(doc.Pages))
		}
		resp.Write(w)
	}
}

// handleEnqueueExport queues a document for the worker. The body is optional.
func (s *Server) handleEnqueueExport(w http.ResponseWriter, r *http.Request) {
	ref, err := planRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req exportRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	f, err := report.ParseFormat(req.Format)
	if err != nil {
		writeError(w, r, badRequest("%s", err))
		return
	}
	at := s.now()
	if v := strings.TrimSpace(req.Reference); v != "" {
		if at, err = time.Parse("2006-01-02", v); err != nil {
			writeError(w, r, badRequest("invalid reference %q, want YYYY-MM-DD", v))
			return
		}
	}
	msg, err := s.export.Enqueue(r.Context(), services.ExportRequest{
		Ref:         ref,
		ClientName:  sanitizeInput(req.ClientName),
		ProjectName: sanitizeInput(req.ProjectName),
		Format:      f,
		Reference:   at,
	}, s.requestedBy(r, req.RequestedBy))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusAccepted).JSON(map[string]any{
		"job_id":    msg.JobID,
		"format":    msg.Format,
		"reference": msg.Reference.Format("2006-01-02"),
		"status":    "queued",
	}).Write(w)
}

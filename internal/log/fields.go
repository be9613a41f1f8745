package log

import "cronograma/internal/core"

// Field names shared by every package so records can be queried uniformly.
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldReferer     = "referer"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldClientID    = "client_id"
	FieldProjectID   = "project_id"
	FieldPlanID      = "plan_id"
	FieldLineID      = "line_id"
	FieldActivityID  = "activity_id"
	FieldCategoryID  = "category_id"
	FieldMonth       = "month"
	FieldConcept     = "concept"
	FieldWarningKind = "warning_kind"
	FieldFormat      = "format"
	FieldPages       = "pages"
	FieldBytes       = "bytes"
	FieldJobID       = "job_id"
	FieldFilename    = "filename"
)

// Components
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentSchedule  = "schedule"
	ComponentOverrides = "overrides"
	ComponentReport    = "report"
	ComponentExport    = "export"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentBackend   = "backend"
)

// Operations
const (
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpCalculate = "calculate"
	OpRender    = "render"
	OpExport    = "export"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithScope adds the (client, project) identifiers of a plan.
func (f LogFields) WithScope(ref core.PlanRef) LogFields {
	f[FieldClientID] = ref.ClientID
	f[FieldProjectID] = ref.ProjectID
	return f
}

// WithLine adds line fields
func (f LogFields) WithLine(l core.Line) LogFields {
	f[FieldLineID] = l.ID
	f[FieldPlanID] = l.PlanID
	f[FieldCategoryID] = l.CategoryID
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}

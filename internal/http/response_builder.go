// Package http serves the scheduling API.
//
// This file provides a fluent builder for JSON and download responses and
// the mapping from domain errors to status codes.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"cronograma/internal/core"
	"cronograma/internal/report"
	"cronograma/internal/services"
)

// ResponseBuilder accumulates status, headers and body and writes them once.
type ResponseBuilder struct {
	statusCode  int
	headers     map[string]string
	contentType string
	body        []byte
	payload     any
	hasPayload  bool
}

// NewResponse creates a builder that defaults to 200 OK.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets v as the body, encoded when the response is written.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.payload = v
	b.hasPayload = true
	b.contentType = "application/json; charset=utf-8"
	return b
}

// Body sets raw content with its media type.
func (b *ResponseBuilder) Body(content []byte, contentType string) *ResponseBuilder {
	b.body = content
	b.contentType = contentType
	b.hasPayload = false
	return b
}

// Attachment marks the body as a download named filename.
func (b *ResponseBuilder) Attachment(filename string) *ResponseBuilder {
	return b.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}

// Write sends the response. Encoding failures fall back to a bare 500.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	body := b.body
	if b.hasPayload {
		enc, err := json.Marshal(b.payload)
		if err != nil {
			slog.Error("Failed to encode response", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		body = append(enc, '\n')
	}

	h := w.Header()
	for name, value := range b.headers {
		h.Set(name, value)
	}
	if b.contentType != "" {
		h.Set("Content-Type", b.contentType)
	}
	if body != nil {
		h.Set("Content-Length", strconv.Itoa(len(body)))
	}
	w.WriteHeader(b.statusCode)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
}

// errorBody is the envelope of every non-2xx JSON response.
type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message})
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func TooManyRequestsError() *ResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later")
}

// badInput lists the sentinels that always mean the caller sent bad data,
// even when they arrive without a ValidationError around them.
var badInput = []error{
	core.ErrInvalidMonth,
	core.ErrInvalidWeek,
	core.ErrInvalidRange,
	core.ErrInvalidAmount,
	core.ErrMissingCategory,
	core.ErrInvalidScope,
	core.ErrInvalidHorizon,
	core.ErrInvalidConcept,
	core.ErrInvalidOrder,
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case core.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrExportsDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	for _, s := range badInput {
		if errors.Is(err, s) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// FromError builds the error response for err. Server-side failures get a
// generic message; the detail goes to the log.
func FromError(err error) *ResponseBuilder {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var ve *core.ValidationError
	if errors.As(err, &ve) {
		body = errorBody{Error: ve.Error(), Field: ve.Field}
	}
	switch {
	case status == http.StatusGatewayTimeout:
		body = errorBody{Error: "the operation timed out"}
	case status == http.StatusInternalServerError && errors.Is(err, core.ErrPartialWrite):
		body = errorBody{Error: "the change was only partly applied; reload and retry"}
	case status == http.StatusInternalServerError && errors.Is(err, report.ErrRender):
		body = errorBody{Error: "the document could not be generated"}
	case status == http.StatusInternalServerError:
		body = errorBody{Error: "internal error"}
	}
	return NewResponse().Status(status).JSON(body)
}

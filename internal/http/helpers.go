package http

import (
	"net/http"
	"strings"

	"cronograma/internal/core"
	"cronograma/internal/log"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// localeFor resolves Accept-Language against the supported locales, falling
// back to the server locale when the header is absent.
func (s *Server) localeFor(r *http.Request) core.Locale {
	if al := strings.TrimSpace(r.Header.Get("Accept-Language")); al != "" {
		return core.MatchLocale(al)
	}
	return s.locale
}

// requestedBy names the caller for audit fields. Without an explicit value
// the client address stands in.
func (s *Server) requestedBy(r *http.Request, explicit string) string {
	if v := sanitizeInput(explicit); v != "" {
		return v
	}
	if v := sanitizeInput(r.Header.Get("X-User")); v != "" {
		return v
	}
	return s.detector.ExtractClientIP(r)
}

// writeError logs server-side failures and answers with the mapped status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := FromError(err)
	if resp.statusCode >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.NewFields().
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
				WithError(err).
				ToSlice()...)
	}
	resp.Write(w)
}

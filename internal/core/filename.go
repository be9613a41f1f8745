package core

import (
	"strings"
	"time"
	"unicode"
)

// ReportFilename builds "{Report}_{Client}_{Project}_{YYYY-MM-DD}.{ext}".
// Every non-alphanumeric character inside a name segment becomes '_'.
func ReportFilename(report, client, project string, date time.Time, ext string) string {
	parts := []string{
		sanitizeSegment(report),
		sanitizeSegment(client),
		sanitizeSegment(project),
		date.Format("2006-01-02"),
	}
	return strings.Join(parts, "_") + "." + strings.TrimPrefix(ext, ".")
}

func sanitizeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '_'
	}, strings.TrimSpace(s))
}

package report

import (
	"context"
	"fmt"
	"strings"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatPDF, "":
		return FormatPDF, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/pdf"
}

func (f Format) Ext() string { return string(f) }

// Result is a finished artifact. Pages is zero for spreadsheets.
type Result struct {
	Format  Format
	Content []byte
	Pages   int
	Stats   Stats
}

// Render produces the artifact or an error wrapping ErrRender; never both.
func Render(ctx context.Context, format Format, data Data) (*Result, error) {
	switch format {
	case FormatXLSX:
		content, err := RenderXLSX(ctx, data)
		if err != nil {
			return nil, err
		}
		return &Result{Format: format, Content: content}, nil
	case FormatPDF:
		doc, err := Layout(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("%w: layout: %w", ErrRender, err)
		}
		content, err := RenderPDF(ctx, doc)
		if err != nil {
			return nil, err
		}
		stats := doc.Stats()
		return &Result{Format: format, Content: content, Pages: stats.Pages, Stats: stats}, nil
	}
	return nil, fmt.Errorf("%w: unsupported format %q", ErrRender, format)
}

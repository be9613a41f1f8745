package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"
)

const fontFamily = "Helvetica"

// RenderPDF replays a laid out document onto Letter landscape pages.
func RenderPDF(ctx context.Context, doc *Document) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "Letter", "")
	pdf.SetMargins(MarginLeft, MarginTop, MarginRight)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(doc.Title, true)
	pdf.SetAuthor(doc.Author, true)
	pdf.SetCreator("cronograma", true)
	if !doc.Created.IsZero() {
		pdf.SetCreationDate(doc.Created)
		pdf.SetModificationDate(doc.Created)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRender, err)
		}
		pdf.AddPage()
		for _, op := range page.Ops {
			drawOp(pdf, tr, op)
		}
		if pdf.Err() {
			return nil, fmt.Errorf("%w: page %d: %w", ErrRender, page.Number, pdf.Error())
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: write pdf: %w", ErrRender, err)
	}
	return buf.Bytes(), nil
}

func drawOp(pdf *fpdf.Fpdf, tr func(string) string, op Op) {
	switch o := op.(type) {
	case Rect:
		style := ""
		if o.Fill != nil {
			pdf.SetFillColor(o.Fill.R, o.Fill.G, o.Fill.B)
			style += "F"
		}
		if o.Stroke != nil {
			pdf.SetDrawColor(o.Stroke.R, o.Stroke.G, o.Stroke.B)
			style += "D"
		}
		if style != "" {
			pdf.Rect(o.X, o.Y, o.W, o.H, style)
		}
	case Rule:
		pdf.SetDrawColor(o.Color.R, o.Color.G, o.Color.B)
		pdf.SetLineWidth(0.15)
		pdf.Line(o.X1, o.Y1, o.X2, o.Y2)
	case Text:
		fontStyle := ""
		if o.Style.Bold {
			fontStyle += "B"
		}
		if o.Style.Italic {
			fontStyle += "I"
		}
		pdf.SetFont(fontFamily, fontStyle, o.Style.Size)
		pdf.SetTextColor(o.Style.Color.R, o.Style.Color.G, o.Style.Color.B)
		fill := o.Fill != nil
		if fill {
			pdf.SetFillColor(o.Fill.R, o.Fill.G, o.Fill.B)
		}
		border := ""
		if o.Border {
			pdf.SetDrawColor(colorGrid.R, colorGrid.G, colorGrid.B)
			pdf.SetLineWidth(0.15)
			border = "1"
		}
		align := o.Align
		if align == "" {
			align = "L"
		}
		pdf.SetXY(o.X, o.Y)
		pdf.CellFormat(o.W, o.H, tr(o.Value), border, 0, align+"M", fill, 0, "")
	}
}

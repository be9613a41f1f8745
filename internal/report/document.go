// Package report renders a plan's timeline and financial matrix as a
// paginated landscape Letter document (PDF) or a workbook (XLSX).
//
// Layout is backend independent: Layout produces a Document made of pages
// and drawing operations, and the PDF backend only replays them.
package report

import (
	"errors"
	"time"
)

// ErrRender wraps every failure that aborts an export. No partial output is
// ever returned alongside it.
var ErrRender = errors.New("render failed")

// Page geometry in millimetres: Letter, landscape.
const (
	PageWidth     = 279.4
	PageHeight    = 215.9
	MarginLeft    = 10.0
	MarginRight   = 10.0
	MarginTop     = 8.0
	MarginBottom  = 12.0
	ContentWidth  = PageWidth - MarginLeft - MarginRight
	ContentBottom = PageHeight - MarginBottom

	BrandHeight     = 12.0
	InfoRowHeight   = 5.5
	SectionHeight   = 8.0
	HeaderRowHeight = 6.0
	RowHeight       = 6.0
	LabelWidth      = 50.0
	TotalWidth      = 26.0

	// MaxMonthsPerBand limits how many month columns one matrix band holds.
	MaxMonthsPerBand = 12
)

type RGB struct{ R, G, B int }

type Style struct {
	Size   float64
	Bold   bool
	Italic bool
	Color  RGB
}

type Op interface{ op() }

// Rect is a filled and/or outlined box.
type Rect struct {
	X, Y, W, H float64
	Fill       *RGB
	Stroke     *RGB
}

// Text is a single line of text laid in a box. Align is L, C or R.
type Text struct {
	X, Y, W, H float64
	Value      string
	Align      string
	Style      Style
	Fill       *RGB
	Border     bool
}

type Rule struct {
	X1, Y1, X2, Y2 float64
	Color          RGB
}

func (Rect) op() {}
func (Text) op() {}
func (Rule) op() {}

type Page struct {
	Number     int
	Ops        []Op
	GanttRows  int
	MatrixRows int
}

func (p *Page) add(ops ...Op) { p.Ops = append(p.Ops, ops...) }

type Stats struct {
	Pages      int
	GanttRows  int
	MatrixRows int
}

type Document struct {
	Title   string
	Author  string
	Created time.Time
	Pages   []*Page
}

func (d *Document) Stats() Stats {
	s := Stats{Pages: len(d.Pages)}
	for _, p := range d.Pages {
		s.GanttRows += p.GanttRows
		s.MatrixRows += p.MatrixRows
	}
	return s
}

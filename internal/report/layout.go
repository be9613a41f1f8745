package report

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cronograma/internal/core"
	"cronograma/internal/distribution"
	"cronograma/internal/overrides"
)

// Data is everything a document shows. It is assembled by the caller from
// one consistent snapshot.
type Data struct {
	Branding    Branding
	ReportName  string
	ClientName  string
	ProjectName string
	Plan        core.Plan
	GeneratedAt time.Time
	Reference   core.MonthWeek
	Locale      core.Locale
	Lines       []core.Line
	Bars        []distribution.Bar
	TotalBudget decimal.Decimal
	Matrix      overrides.Matrix
}

type layouter struct {
	ctx    context.Context
	data   Data
	lang   string
	doc    *Document
	page   *Page
	cur    *Cursor
	repeat func()
}

// Layout paginates the document: page header on every page, info block, the
// timeline grid and the numeric matrix. Page footers are added last, once the
// page count is final.
func Layout(ctx context.Context, data Data) (*Document, error) {
	l := &layouter{
		ctx:  ctx,
		data: data,
		lang: data.Locale.Lang(),
		doc: &Document{
			Title:   data.ReportName,
			Author:  data.Branding.CompanyName,
			Created: data.GeneratedAt,
		},
	}
	l.cur = NewCursor(MarginTop, ContentBottom, l.startPage)
	l.cur.NewPage()

	l.info()
	if err := l.gantt(); err != nil {
		return nil, err
	}
	if err := l.matrix(); err != nil {
		return nil, err
	}
	l.footnote()
	l.footers()
	return l.doc, nil
}

func (l *layouter) startPage(n int) {
	l.page = &Page{Number: n}
	l.doc.Pages = append(l.doc.Pages, l.page)

	b := l.data.Branding
	y, _ := l.cur.Advance(BrandHeight)
	primary := b.Primary.RGB
	l.page.add(
		Rect{X: MarginLeft, Y: y, W: ContentWidth, H: BrandHeight, Fill: &primary},
		Text{X: MarginLeft + 3, Y: y, W: ContentWidth / 3, H: BrandHeight, Value: b.CompanyName, Align: "L",
			Style: Style{Size: 12, Bold: true, Color: colorWhite}},
		Text{X: MarginLeft + ContentWidth/3, Y: y, W: ContentWidth / 3, H: BrandHeight, Value: b.ReportTitle, Align: "C",
			Style: Style{Size: 9, Color: colorWhite}},
		Text{X: MarginLeft + 2*ContentWidth/3, Y: y, W: ContentWidth/3 - 3, H: BrandHeight,
			Value: l.data.ClientName + " · " + l.data.ProjectName, Align: "R",
			Style: Style{Size: 8, Color: colorWhite}},
	)
	l.cur.Gap(3)
	if l.repeat != nil {
		l.repeat()
	}
}

func (l *layouter) info() {
	loc := l.data.Locale
	plan := l.data.Plan
	pairs := [][2]string{
		{label(l.lang, "client"), l.data.ClientName},
		{label(l.lang, "project"), l.data.ProjectName},
		{label(l.lang, "start"), loc.MonthLabel(plan.StartMonth)},
		{label(l.lang, "horizon"), fmt.Sprintf("%d %s", plan.MonthsCount, label(l.lang, "months"))},
		{label(l.lang, "budget"), loc.FormatMoney(l.data.TotalBudget)},
		{label(l.lang, "cutoff"), fmt.Sprintf("%s, %s %d", loc.MonthLabel(l.data.Reference.Month), label(l.lang, "weeks"), l.data.Reference.Week)},
	}
	y, _ := l.cur.Advance(InfoRowHeight * float64((len(pairs)+1)/2))
	half := ContentWidth / 2
	for i, p := range pairs {
		x := MarginLeft + float64(i%2)*half
		yy := y + float64(i/2)*InfoRowHeight
		l.page.add(
			Text{X: x, Y: yy, W: 34, H: InfoRowHeight, Value: p[0] + ":", Align: "L", Style: Style{Size: 8, Bold: true, Color: colorText}},
			Text{X: x + 34, Y: yy, W: half - 36, H: InfoRowHeight, Value: fit(p[1], half-36, 8), Align: "L", Style: Style{Size: 8, Color: colorText}},
		)
	}
	l.cur.Gap(4)
}

func (l *layouter) sectionTitle(title string) {
	y, _ := l.cur.Advance(SectionHeight)
	l.page.add(
		Text{X: MarginLeft, Y: y, W: ContentWidth, H: SectionHeight, Value: title, Align: "L",
			Style: Style{Size: 10, Bold: true, Color: l.data.Branding.Primary.RGB}},
		Rule{X1: MarginLeft, Y1: y + SectionHeight - 0.5, X2: MarginLeft + ContentWidth, Y2: y + SectionHeight - 0.5,
			Color: l.data.Branding.Primary.RGB},
	)
}

func (l *layouter) gantt() error {
	months := l.data.Plan.Horizon()
	if len(months) == 0 {
		return nil
	}
	gridX := MarginLeft + LabelWidth
	gridW := ContentWidth - LabelWidth
	colW := gridW / float64(len(months))

	header := func() {
		y, _ := l.cur.Advance(HeaderRowHeight)
		fill := colorHeaderCell
		l.page.add(Text{X: MarginLeft, Y: y, W: LabelWidth, H: HeaderRowHeight, Value: label(l.lang, "category"),
			Align: "L", Style: Style{Size: 6.5, Bold: true, Color: colorText}, Fill: &fill, Border: true})
		for i, m := range months {
			l.page.add(Text{X: gridX + float64(i)*colW, Y: y, W: colW, H: HeaderRowHeight,
				Value: fit(l.data.Locale.ShortMonthLabel(m), colW, 6), Align: "C",
				Style: Style{Size: 6, Bold: true, Color: colorText}, Fill: &fill, Border: true})
		}
	}

	l.cur.Reserve(SectionHeight + HeaderRowHeight + RowHeight)
	l.sectionTitle(label(l.lang, "gantt"))
	header()
	l.repeat = header
	defer func() { l.repeat = nil }()

	bars := make(map[int64]distribution.Bar, len(l.data.Bars))
	for _, b := range l.data.Bars {
		bars[b.LineID] = b
	}
	accent := l.data.Branding.Accent.RGB
	for i, line := range l.data.Lines {
		if err := l.ctx.Err(); err != nil {
			return err
		}
		y, _ := l.cur.Advance(RowHeight)
		if i%2 == 1 {
			shade := colorShade
			l.page.add(Rect{X: MarginLeft, Y: y, W: ContentWidth, H: RowHeight, Fill: &shade})
		}
		l.page.add(Text{X: MarginLeft + 1, Y: y, W: LabelWidth - 2, H: RowHeight,
			Value: fit(line.Label(), LabelWidth-2, 6.5), Align: "L", Style: Style{Size: 6.5, Color: colorText}})
		for c := 0; c <= len(months); c++ {
			x := gridX + float64(c)*colW
			l.page.add(Rule{X1: x, Y1: y, X2: x, Y2: y + RowHeight, Color: colorGrid})
		}
		l.page.add(Rule{X1: MarginLeft, Y1: y + RowHeight, X2: MarginLeft + ContentWidth, Y2: y + RowHeight, Color: colorGrid})

		b, ok := bars[line.ID]
		if !ok {
			l.page.add(Text{X: gridX + 1, Y: y, W: gridW - 2, H: RowHeight, Value: label(l.lang, "no_span"),
				Align: "L", Style: Style{Size: 6, Italic: true, Color: colorMuted}})
			l.page.GanttRows++
			continue
		}
		x, w := BarGeometry(b.MonthIndex, b.WeekIndex, b.DurationWeeks, colW)
		if x, w, visible := clipBar(x, w, gridW); visible {
			fill := barColor(b, accent)
			l.page.add(Rect{X: gridX + x, Y: y + 1.2, W: w, H: RowHeight - 2.4, Fill: &fill})
			note := fmt.Sprintf("%d %s · %.0f%%", b.DurationWeeks, label(l.lang, "weeks"), b.Progress)
			noteW := textWidth(note, 5.5) + 2
			switch {
			case w >= noteW:
				l.page.add(Text{X: gridX + x, Y: y, W: w, H: RowHeight, Value: note, Align: "C",
					Style: Style{Size: 5.5, Bold: true, Color: colorWhite}})
			case x+w+noteW <= gridW:
				l.page.add(Text{X: gridX + x + w + 0.5, Y: y, W: noteW, H: RowHeight, Value: note, Align: "L",
					Style: Style{Size: 5.5, Color: colorMuted}})
			case x >= noteW:
				l.page.add(Text{X: gridX + x - noteW - 0.5, Y: y, W: noteW, H: RowHeight, Value: note, Align: "R",
					Style: Style{Size: 5.5, Color: colorMuted}})
			}
		}
		l.page.GanttRows++
	}
	l.cur.Gap(6)
	return nil
}

type band struct{ start, end int }

func bands(n, size int) []band {
	var out []band
	for s := 0; s < n; s += size {
		out = append(out, band{start: s, end: min(s+size, n)})
	}
	return out
}

func (l *layouter) matrix() error {
	mx := l.data.Matrix
	if len(mx.Months) == 0 {
		return nil
	}
	loc := l.data.Locale
	slots := min(len(mx.Months), MaxMonthsPerBand)
	colW := (ContentWidth - LabelWidth - TotalWidth) / float64(slots)
	parts := bands(len(mx.Months), MaxMonthsPerBand)

	for bi, bd := range parts {
		last := bi == len(parts)-1
		title := label(l.lang, "matrix")
		if len(parts) > 1 {
			title += " (" + fmt.Sprintf(label(l.lang, "band"), bd.start+1, bd.end) + ")"
		}
		header := func() {
			y, _ := l.cur.Advance(HeaderRowHeight)
			fill := colorHeaderCell
			l.page.add(Text{X: MarginLeft, Y: y, W: LabelWidth, H: HeaderRowHeight, Value: label(l.lang, "concept"),
				Align: "L", Style: Style{Size: 6.5, Bold: true, Color: colorText}, Fill: &fill, Border: true})
			for i := bd.start; i < bd.end; i++ {
				l.page.add(Text{X: MarginLeft + LabelWidth + float64(i-bd.start)*colW, Y: y, W: colW, H: HeaderRowHeight,
					Value: fit(loc.ShortMonthLabel(mx.Months[i]), colW, 6), Align: "C",
					Style: Style{Size: 6, Bold: true, Color: colorText}, Fill: &fill, Border: true})
			}
			if last {
				l.page.add(Text{X: MarginLeft + LabelWidth + float64(bd.end-bd.start)*colW, Y: y, W: TotalWidth, H: HeaderRowHeight,
					Value: label(l.lang, "total"), Align: "C", Style: Style{Size: 6.5, Bold: true, Color: colorText}, Fill: &fill, Border: true})
			}
		}

		l.cur.Reserve(SectionHeight + HeaderRowHeight + RowHeight)
		l.sectionTitle(title)
		header()
		l.repeat = header

		for _, cr := range mx.Categories {
			if err := l.ctx.Err(); err != nil {
				l.repeat = nil
				return err
			}
			name := cr.Label
			if !cr.Budgeted {
				name += " (" + label(l.lang, "no_budget") + ")"
			}
			cells := make([]matrixCell, 0, bd.end-bd.start)
			for i := bd.start; i < bd.end; i++ {
				cells = append(cells, matrixCell{text: loc.FormatMoney(cr.Cells[i])})
			}
			total := ""
			if last {
				total = loc.FormatMoney(cr.Total)
			}
			l.matrixRow(name, false, cells, total, last, colW)
		}
		for _, r := range mx.Rows {
			if err := l.ctx.Err(); err != nil {
				l.repeat = nil
				return err
			}
			cells := make([]matrixCell, 0, bd.end-bd.start)
			for i := bd.start; i < bd.end; i++ {
				c := r.Cells[i]
				text := c.Display.Format(loc)
				if c.Overridden {
					text += "*"
				}
				cells = append(cells, matrixCell{text: text, overridden: c.Overridden})
			}
			total := ""
			if last {
				total = r.Total.Format(loc)
			}
			l.matrixRow(r.Label, true, cells, total, last, colW)
		}
		l.repeat = nil
		l.cur.Gap(5)
	}
	return nil
}

type matrixCell struct {
	text       string
	overridden bool
}

func (l *layouter) matrixRow(name string, concept bool, cells []matrixCell, total string, withTotal bool, colW float64) {
	y, _ := l.cur.Advance(RowHeight)
	style := Style{Size: 5.5, Color: colorText}
	labelStyle := Style{Size: 6.5, Bold: concept, Color: colorText}
	var labelFill *RGB
	if concept {
		f := colorShade
		labelFill = &f
	}
	l.page.add(Text{X: MarginLeft, Y: y, W: LabelWidth, H: RowHeight, Value: fit(name, LabelWidth-1, 6.5),
		Align: "L", Style: labelStyle, Fill: labelFill, Border: true})
	for i, c := range cells {
		var fill *RGB
		if c.overridden {
			f := colorOverride
			fill = &f
		}
		l.page.add(Text{X: MarginLeft + LabelWidth + float64(i)*colW, Y: y, W: colW, H: RowHeight,
			Value: fit(c.text, colW, 5.5), Align: "R", Style: style, Fill: fill, Border: true})
	}
	if withTotal {
		l.page.add(Text{X: MarginLeft + LabelWidth + float64(len(cells))*colW, Y: y, W: TotalWidth, H: RowHeight,
			Value: fit(total, TotalWidth, 6.5), Align: "R", Style: Style{Size: 6.5, Bold: true, Color: colorText}, Border: true})
	}
	l.page.MatrixRows++
}

func (l *layouter) footnote() {
	if !l.data.Matrix.HasOverrides {
		return
	}
	y, _ := l.cur.Advance(RowHeight)
	l.page.add(Text{X: MarginLeft, Y: y, W: ContentWidth, H: RowHeight, Value: label(l.lang, "footnote"),
		Align: "L", Style: Style{Size: 7, Italic: true, Color: colorMuted}})
}

// footers numbers every page against the final page count.
func (l *layouter) footers() {
	total := len(l.doc.Pages)
	y := ContentBottom + 2
	left := fmt.Sprintf(label(l.lang, "generated"), l.data.GeneratedAt.Format("2006-01-02 15:04"))
	if f := l.data.Branding.Footer; f != "" {
		left = f + " · " + left
	}
	for _, p := range l.doc.Pages {
		p.add(
			Rule{X1: MarginLeft, Y1: y, X2: MarginLeft + ContentWidth, Y2: y, Color: colorGrid},
			Text{X: MarginLeft, Y: y + 0.5, W: ContentWidth / 2, H: 5, Value: left, Align: "L",
				Style: Style{Size: 6.5, Color: colorMuted}},
			Text{X: MarginLeft + ContentWidth/2, Y: y + 0.5, W: ContentWidth / 2, H: 5,
				Value: fmt.Sprintf(label(l.lang, "page"), p.Number, total), Align: "R",
				Style: Style{Size: 6.5, Color: colorMuted}},
		)
	}
}

// textWidth estimates Helvetica text width in millimetres.
func textWidth(s string, size float64) float64 {
	return float64(len([]rune(s))) * size * 0.3528 * 0.52
}

// fit truncates s with an ellipsis so it fits in w millimetres.
func fit(s string, w, size float64) string {
	if textWidth(s, size) <= w-1 {
		return s
	}
	r := []rune(s)
	n := int((w-1)/(size*0.3528*0.52)) - 1
	if n < 1 {
		return ""
	}
	if n > len(r) {
		n = len(r)
	}
	return string(r[:n]) + "…"
}

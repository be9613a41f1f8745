package report

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"cronograma/internal/distribution"
	"cronograma/internal/overrides"
)

const (
	sheetGantt  = "Programa"
	sheetMatrix = "Matriz"

	// Letter paper in the OOXML paper size table.
	xlsxPaperLetter = 1
)

type styleSpec struct {
	dst   *int
	style *excelize.Style
}

type xlsxStyles struct {
	title, header, label, money, percent int
	moneyOver, percentOver, note         int
	discount                             int
	status                               map[distribution.Status]int
}

// RenderXLSX writes the same content as the PDF into a two sheet workbook:
// the timeline as coloured week cells and the matrix as numbers.
func RenderXLSX(ctx context.Context, data Data) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetGantt); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	if _, err := f.NewSheet(sheetMatrix); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	st, err := newXLSXStyles(f, data.Branding)
	if err != nil {
		return nil, fmt.Errorf("%w: styles: %w", ErrRender, err)
	}
	if err := writeGanttSheet(ctx, f, st, data); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRender, sheetGantt, err)
	}
	if err := writeMatrixSheet(ctx, f, st, data); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRender, sheetMatrix, err)
	}

	lang := data.Locale.Lang()
	orientation := "landscape"
	size := xlsxPaperLetter
	for _, sheet := range []string{sheetGantt, sheetMatrix} {
		if err := f.SetPageLayout(sheet, &excelize.PageLayoutOptions{Size: &size, Orientation: &orientation}); err != nil {
			return nil, fmt.Errorf("%w: page layout: %w", ErrRender, err)
		}
		if err := f.SetHeaderFooter(sheet, &excelize.HeaderFooterOptions{
			OddHeader: "&L" + data.Branding.CompanyName + "&R" + data.ClientName + " / " + data.ProjectName,
			OddFooter: "&R" + pageFooter(lang),
		}); err != nil {
			return nil, fmt.Errorf("%w: header: %w", ErrRender, err)
		}
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   data.ReportName,
		Creator: data.Branding.CompanyName,
		Created: data.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}); err != nil {
		return nil, fmt.Errorf("%w: properties: %w", ErrRender, err)
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: write xlsx: %w", ErrRender, err)
	}
	return buf.Bytes(), nil
}

func pageFooter(lang string) string {
	if lang == "en" {
		return "Page &P of &N"
	}
	return "Página &P de &N"
}

func hex(c RGB) string { return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B) }

func fillStyle(f *excelize.File, c RGB) (int, error) {
	return f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{hex(c)}}})
}

func newXLSXStyles(f *excelize.File, b Branding) (*xlsxStyles, error) {
	border := []excelize.Border{
		{Type: "left", Color: hex(colorGrid), Style: 1},
		{Type: "right", Color: hex(colorGrid), Style: 1},
		{Type: "top", Color: hex(colorGrid), Style: 1},
		{Type: "bottom", Color: hex(colorGrid), Style: 1},
	}
	moneyFmt := `"$"#,##0.00`
	pctFmt := `0.0"%"`
	overFill := excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{hex(colorOverride)}}

	st := &xlsxStyles{status: map[distribution.Status]int{}}
	specs := []styleSpec{
		{&st.title, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 14, Color: hex(b.Primary.RGB)}}},
		{&st.header, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
			Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{hex(b.Primary.RGB)}},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
			Border:    border,
		}},
		{&st.label, &excelize.Style{Border: border}},
		{&st.money, &excelize.Style{CustomNumFmt: &moneyFmt, Border: border}},
		{&st.percent, &excelize.Style{CustomNumFmt: &pctFmt, Border: border}},
		{&st.moneyOver, &excelize.Style{CustomNumFmt: &moneyFmt, Border: border, Fill: overFill}},
		{&st.percentOver, &excelize.Style{CustomNumFmt: &pctFmt, Border: border, Fill: overFill}},
		{&st.note, &excelize.Style{Font: &excelize.Font{Italic: true, Color: hex(colorMuted)}}},
	}
	for _, s := range specs {
		id, err := f.NewStyle(s.style)
		if err != nil {
			return nil, err
		}
		*s.dst = id
	}

	for status, c := range map[distribution.Status]RGB{
		distribution.StatusPending:    colorPending,
		distribution.StatusInProgress: b.Accent.RGB,
		distribution.StatusCompleted:  colorCompleted,
	} {
		id, err := fillStyle(f, c)
		if err != nil {
			return nil, err
		}
		st.status[status] = id
	}
	id, err := fillStyle(f, colorDiscount)
	if err != nil {
		return nil, err
	}
	st.discount = id
	return st, nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func writeInfo(f *excelize.File, sheet string, st *xlsxStyles, data Data) (int, error) {
	lang := data.Locale.Lang()
	rows := [][2]any{
		{label(lang, "client"), data.ClientName},
		{label(lang, "project"), data.ProjectName},
		{label(lang, "start"), data.Locale.MonthLabel(data.Plan.StartMonth)},
		{label(lang, "budget"), data.TotalBudget.Round(2).InexactFloat64()},
	}
	if err := f.SetCellValue(sheet, "A1", data.Branding.CompanyName+" · "+data.Branding.ReportTitle); err != nil {
		return 0, err
	}
	if err := f.SetCellStyle(sheet, "A1", "A1", st.title); err != nil {
		return 0, err
	}
	for i, r := range rows {
		if err := f.SetCellValue(sheet, cell(1, i+2), r[0]); err != nil {
			return 0, err
		}
		if err := f.SetCellValue(sheet, cell(2, i+2), r[1]); err != nil {
			return 0, err
		}
	}
	if err := f.SetCellStyle(sheet, cell(2, len(rows)+1), cell(2, len(rows)+1), st.money); err != nil {
		return 0, err
	}
	return len(rows) + 3, nil
}

func writeGanttSheet(ctx context.Context, f *excelize.File, st *xlsxStyles, data Data) error {
	lang := data.Locale.Lang()
	months := data.Plan.Horizon()
	row, err := writeInfo(f, sheetGantt, st, data)
	if err != nil {
		return err
	}

	// Month headers span their four week columns.
	if err := f.SetCellValue(sheetGantt, cell(1, row), label(lang, "category")); err != nil {
		return err
	}
	for i, m := range months {
		first, last := cell(2+i*4, row), cell(5+i*4, row)
		if err := f.SetCellValue(sheetGantt, first, data.Locale.ShortMonthLabel(m)); err != nil {
			return err
		}
		if err := f.MergeCell(sheetGantt, first, last); err != nil {
			return err
		}
	}
	lastCol := 1 + len(months)*4
	if err := f.SetCellValue(sheetGantt, cell(lastCol+1, row), label(lang, "weeks")); err != nil {
		return err
	}
	if err := f.SetCellValue(sheetGantt, cell(lastCol+2, row), "%"); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetGantt, cell(1, row), cell(lastCol+2, row), st.header); err != nil {
		return err
	}

	bars := make(map[int64]distribution.Bar, len(data.Bars))
	for _, b := range data.Bars {
		bars[b.LineID] = b
	}
	weekSlots := len(months) * 4
	for _, line := range data.Lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		row++
		if err := f.SetCellValue(sheetGantt, cell(1, row), line.Label()); err != nil {
			return err
		}
		b, ok := bars[line.ID]
		if !ok {
			continue
		}
		start := b.MonthIndex*4 + b.WeekIndex - 1
		end := start + max(b.DurationWeeks, 1) - 1
		start, end = max(start, 0), min(end, weekSlots-1)
		if start <= end {
			style := st.status[b.Status]
			if b.IsDiscount {
				style = st.discount
			}
			if err := f.SetCellStyle(sheetGantt, cell(2+start, row), cell(2+end, row), style); err != nil {
				return err
			}
		}
		if err := f.SetCellValue(sheetGantt, cell(lastCol+1, row), b.DurationWeeks); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetGantt, cell(lastCol+2, row), b.Progress); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetGantt, cell(lastCol+2, row), cell(lastCol+2, row), st.percent); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheetGantt, "A", "A", 40); err != nil {
		return err
	}
	if weekSlots > 0 {
		firstWeek, _ := excelize.ColumnNumberToName(2)
		lastWeek, _ := excelize.ColumnNumberToName(lastCol)
		if err := f.SetColWidth(sheetGantt, firstWeek, lastWeek, 2.2); err != nil {
			return err
		}
	}
	return nil
}

func writeMatrixSheet(ctx context.Context, f *excelize.File, st *xlsxStyles, data Data) error {
	lang := data.Locale.Lang()
	mx := data.Matrix
	row, err := writeInfo(f, sheetMatrix, st, data)
	if err != nil {
		return err
	}
	headerRow := row
	if err := f.SetCellValue(sheetMatrix, cell(1, row), label(lang, "concept")); err != nil {
		return err
	}
	for i, m := range mx.Months {
		if err := f.SetCellValue(sheetMatrix, cell(2+i, row), data.Locale.ShortMonthLabel(m)); err != nil {
			return err
		}
	}
	totalCol := 2 + len(mx.Months)
	if err := f.SetCellValue(sheetMatrix, cell(totalCol, row), label(lang, "total")); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetMatrix, cell(1, row), cell(totalCol, row), st.header); err != nil {
		return err
	}

	for _, cr := range mx.Categories {
		if err := ctx.Err(); err != nil {
			return err
		}
		row++
		name := cr.Label
		if !cr.Budgeted {
			name += " (" + label(lang, "no_budget") + ")"
		}
		if err := f.SetCellValue(sheetMatrix, cell(1, row), name); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetMatrix, cell(1, row), cell(1, row), st.label); err != nil {
			return err
		}
		for i, v := range cr.Cells {
			if err := f.SetCellValue(sheetMatrix, cell(2+i, row), v.Round(2).InexactFloat64()); err != nil {
				return err
			}
		}
		if err := f.SetCellValue(sheetMatrix, cell(totalCol, row), cr.Total.Round(2).InexactFloat64()); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetMatrix, cell(2, row), cell(totalCol, row), st.money); err != nil {
			return err
		}
	}

	for _, r := range mx.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		row++
		if err := f.SetCellValue(sheetMatrix, cell(1, row), r.Label); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetMatrix, cell(1, row), cell(1, row), st.label); err != nil {
			return err
		}
		plain, over := st.percent, st.percentOver
		if r.Kind == overrides.KindCurrency {
			plain, over = st.money, st.moneyOver
		}
		for i, c := range r.Cells {
			ref := cell(2+i, row)
			if err := f.SetCellValue(sheetMatrix, ref, c.Display.Float()); err != nil {
				return err
			}
			style := plain
			if c.Overridden {
				style = over
			}
			if err := f.SetCellStyle(sheetMatrix, ref, ref, style); err != nil {
				return err
			}
		}
		ref := cell(totalCol, row)
		if err := f.SetCellValue(sheetMatrix, ref, r.Total.Float()); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetMatrix, ref, ref, plain); err != nil {
			return err
		}
	}

	if mx.HasOverrides {
		row += 2
		if err := f.SetCellValue(sheetMatrix, cell(1, row), label(lang, "footnote")); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetMatrix, cell(1, row), cell(1, row), st.note); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheetMatrix, "A", "A", 40); err != nil {
		return err
	}
	if len(mx.Months) > 0 {
		lastName, _ := excelize.ColumnNumberToName(totalCol)
		if err := f.SetColWidth(sheetMatrix, "B", lastName, 14); err != nil {
			return err
		}
	}
	return f.SetPanes(sheetMatrix, &excelize.Panes{
		Freeze:      true,
		XSplit:      1,
		YSplit:      headerRow,
		TopLeftCell: cell(2, headerRow+1),
		ActivePane:  "bottomRight",
	})
}

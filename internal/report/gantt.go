package report

import "cronograma/internal/distribution"

var (
	colorPending    = RGB{R: 170, G: 170, B: 170}
	colorCompleted  = RGB{R: 60, G: 150, B: 80}
	colorDiscount   = RGB{R: 200, G: 60, B: 60}
	colorGrid       = RGB{R: 215, G: 215, B: 215}
	colorShade      = RGB{R: 244, G: 246, B: 249}
	colorOverride   = RGB{R: 255, G: 243, B: 205}
	colorText       = RGB{R: 40, G: 40, B: 40}
	colorMuted      = RGB{R: 110, G: 110, B: 110}
	colorWhite      = RGB{R: 255, G: 255, B: 255}
	colorHeaderCell = RGB{R: 228, G: 233, B: 240}
)

// BarGeometry places a bar inside a grid whose months are colW wide.
// x = monthIndex*colW + (week-1)*colW/4 and the width is never below one week.
func BarGeometry(monthIndex, week, durationWeeks int, colW float64) (x, w float64) {
	weekW := colW / 4
	x = float64(monthIndex)*colW + float64(week-1)*weekW
	w = max(weekW, float64(durationWeeks)*weekW)
	return x, w
}

// clipBar trims a bar to [0, gridW]; ok is false when nothing is visible.
func clipBar(x, w, gridW float64) (float64, float64, bool) {
	if x < 0 {
		w += x
		x = 0
	}
	if x+w > gridW {
		w = gridW - x
	}
	return x, w, w > 0
}

func barColor(b distribution.Bar, accent RGB) RGB {
	if b.IsDiscount {
		return colorDiscount
	}
	switch b.Status {
	case distribution.StatusCompleted:
		return colorCompleted
	case distribution.StatusInProgress:
		return accent
	}
	return colorPending
}

package core

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Locale carries presentation settings only; it never affects ordering or storage.
type Locale struct {
	Tag     language.Tag
	Symbol  string
	Group   string
	Decimal string
	months  [12]string
}

var (
	localeMX = Locale{
		Tag:     language.MustParse("es-MX"),
		Symbol:  "$",
		Group:   ",",
		Decimal: ".",
		months: [12]string{"enero", "febrero", "marzo", "abril", "mayo", "junio",
			"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"},
	}
	localeUS = Locale{
		Tag:     language.AmericanEnglish,
		Symbol:  "$",
		Group:   ",",
		Decimal: ".",
		months: [12]string{"january", "february", "march", "april", "may", "june",
			"july", "august", "september", "october", "november", "december"},
	}

	supportedLocales = []Locale{localeMX, localeUS}
	localeMatcher    = language.NewMatcher([]language.Tag{localeMX.Tag, localeUS.Tag})
)

func DefaultLocale() Locale { return localeMX }

// MatchLocale picks the closest supported locale for a list of BCP 47 tags
// or an Accept-Language value.
func MatchLocale(prefs ...string) Locale {
	_, idx := language.MatchStrings(localeMatcher, prefs...)
	if idx < 0 || idx >= len(supportedLocales) {
		return DefaultLocale()
	}
	return supportedLocales[idx]
}

// Lang is the base language code ("es", "en").
func (l Locale) Lang() string {
	base, _ := l.Tag.Base()
	return base.String()
}

// MonthLabel renders "Octubre 2026" style labels.
func (l Locale) MonthLabel(m Month) string {
	if m.Month < 1 || m.Month > 12 {
		return m.Token()
	}
	name := cases.Title(l.Tag).String(l.months[m.Month-1])
	return name + " " + strconv.Itoa(m.Year)
}

// ShortMonthLabel renders "Oct 26" style labels for narrow columns.
func (l Locale) ShortMonthLabel(m Month) string {
	if m.Month < 1 || m.Month > 12 {
		return m.Token()
	}
	name := []rune(cases.Title(l.Tag).String(l.months[m.Month-1]))
	if len(name) > 3 {
		name = name[:3]
	}
	return string(name) + " " + strconv.Itoa(m.Year%100)
}

// FormatPercent renders a percentage with one decimal.
func (l Locale) FormatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	if l.Decimal != "." {
		s = strings.Replace(s, ".", l.Decimal, 1)
	}
	return s + "%"
}

package report

var catalog = map[string]map[string]string{
	"es": {
		"client":    "Cliente",
		"project":   "Proyecto",
		"start":     "Inicio",
		"horizon":   "Horizonte",
		"months":    "meses",
		"budget":    "Presupuesto total",
		"cutoff":    "Fecha de corte",
		"gantt":     "Programa de obra",
		"matrix":    "Matriz financiera",
		"category":  "Partida",
		"concept":   "Concepto",
		"total":     "TOTAL",
		"footnote":  "* Valores editados manualmente",
		"page":      "Página %d de %d",
		"generated": "Generado el %s",
		"weeks":     "sem",
		"no_budget": "sin presupuesto",
		"no_span":   "sin programa",
		"band":      "meses %d a %d",
	},
	"en": {
		"client":    "Client",
		"project":   "Project",
		"start":     "Start",
		"horizon":   "Horizon",
		"months":    "months",
		"budget":    "Total budget",
		"cutoff":    "Cut-off",
		"gantt":     "Construction schedule",
		"matrix":    "Financial matrix",
		"category":  "Category",
		"concept":   "Concept",
		"total":     "TOTAL",
		"footnote":  "* manually edited values",
		"page":      "Page %d of %d",
		"generated": "Generated %s",
		"weeks":     "wk",
		"no_budget": "no budget",
		"no_span":   "not scheduled",
		"band":      "months %d to %d",
	},
}

func label(lang, key string) string {
	if m, ok := catalog[lang]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	return catalog["es"][key]
}

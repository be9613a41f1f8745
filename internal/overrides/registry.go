// Package overrides lets users pin matrix cells to manual values. Overrides
// are stored apart from the computed series and applied only when the matrix
// is resolved for display.
package overrides

import (
	"fmt"

	"cronograma/internal/core"
	"cronograma/internal/distribution"
)

// Concept keys as stored with each override.
const (
	ConceptExpenditure          = "gastoPorMes"
	ConceptIncrementalProgress  = "avanceParcial"
	ConceptCumulativeProgress   = "avanceAcumulado"
	ConceptDisbursements        = "ministraciones"
	ConceptCumulativeInvestment = "inversionAcumulada"
)

type Aggregate int

const (
	// AggregateSum totals a row by adding its displayed cells.
	AggregateSum Aggregate = iota
	// AggregateLast totals a running series by its final displayed cell.
	AggregateLast
)

// Concept is one matrix row type. Kind decides how override values parse.
type Concept struct {
	Key       string
	Kind      Kind
	Aggregate Aggregate
	Labels    map[string]string
	Series    func(distribution.MonthlyCalculations, core.Month) Value
}

func (c Concept) Label(lang string) string {
	if l, ok := c.Labels[lang]; ok {
		return l
	}
	if l, ok := c.Labels["es"]; ok {
		return l
	}
	return c.Key
}

// Parse converts a stored override value to the concept's type.
func (c Concept) Parse(raw string) (Value, error) {
	if c.Kind == KindCurrency {
		return parseCurrency(raw)
	}
	return parsePercentage(raw)
}

type Registry struct {
	concepts []Concept
	byKey    map[string]Concept
}

func NewRegistry(concepts ...Concept) *Registry {
	r := &Registry{byKey: make(map[string]Concept, len(concepts))}
	for _, c := range concepts {
		r.concepts = append(r.concepts, c)
		r.byKey[c.Key] = c
	}
	return r
}

// DefaultRegistry holds the five monthly series in display order.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Concept{
			Key: ConceptExpenditure, Kind: KindCurrency, Aggregate: AggregateSum,
			Labels: map[string]string{"es": "Gasto mensual", "en": "Monthly expenditure"},
			Series: func(c distribution.MonthlyCalculations, m core.Month) Value { return Currency(c.Expenditure[m]) },
		},
		Concept{
			Key: ConceptIncrementalProgress, Kind: KindPercentage, Aggregate: AggregateSum,
			Labels: map[string]string{"es": "Avance parcial", "en": "Monthly progress"},
			Series: func(c distribution.MonthlyCalculations, m core.Month) Value {
				return Percentage(c.IncrementalProgress[m])
			},
		},
		Concept{
			Key: ConceptCumulativeProgress, Kind: KindPercentage, Aggregate: AggregateLast,
			Labels: map[string]string{"es": "Avance acumulado", "en": "Cumulative progress"},
			Series: func(c distribution.MonthlyCalculations, m core.Month) Value {
				return Percentage(c.CumulativeProgress[m])
			},
		},
		Concept{
			Key: ConceptDisbursements, Kind: KindCurrency, Aggregate: AggregateSum,
			Labels: map[string]string{"es": "Ministraciones", "en": "Disbursements"},
			Series: func(c distribution.MonthlyCalculations, m core.Month) Value { return Currency(c.Disbursements[m]) },
		},
		Concept{
			Key: ConceptCumulativeInvestment, Kind: KindPercentage, Aggregate: AggregateLast,
			Labels: map[string]string{"es": "Inversión acumulada", "en": "Cumulative investment"},
			Series: func(c distribution.MonthlyCalculations, m core.Month) Value {
				return Percentage(c.CumulativeInvestment[m])
			},
		},
	)
}

func (r *Registry) Lookup(key string) (Concept, bool) {
	c, ok := r.byKey[key]
	return c, ok
}

func (r *Registry) Concepts() []Concept { return r.concepts }

// Validate checks an override before it is stored.
func (r *Registry) Validate(o core.MatrixOverride) (Value, error) {
	if err := o.Validate(); err != nil {
		return Value{}, err
	}
	c, ok := r.Lookup(o.Concept)
	if !ok {
		return Value{}, &core.ValidationError{Field: "concept", Reason: fmt.Sprintf("unknown concept %q", o.Concept), Err: core.ErrInvalidConcept}
	}
	v, err := c.Parse(o.Value)
	if err != nil {
		return Value{}, &core.ValidationError{Field: "value", Reason: err.Error(), Err: core.ErrInvalidAmount}
	}
	return v, nil
}

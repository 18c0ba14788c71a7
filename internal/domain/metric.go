package domain

import (
	"fmt"
	"strings"
)

// AggregationMethod is the closed set of strategies used to combine a series
// of values into one.
type AggregationMethod uint8

const (
	AggregateSum AggregationMethod = iota + 1
	AggregateAverage
	AggregateLast
	AggregateMin
	AggregateMax
)

var aggregationNames = map[AggregationMethod]string{
	AggregateSum:     "sum",
	AggregateAverage: "average",
	AggregateLast:    "last",
	AggregateMin:     "min",
	AggregateMax:     "max",
}

// ParseAggregationMethod maps a catalog string onto an AggregationMethod.
// An empty string means sum.
func ParseAggregationMethod(s string) (AggregationMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sum":
		return AggregateSum, nil
	case "average", "avg":
		return AggregateAverage, nil
	case "last":
		return AggregateLast, nil
	case "min":
		return AggregateMin, nil
	case "max":
		return AggregateMax, nil
	}
	return 0, fmt.Errorf("unknown aggregation method %q", s)
}

func (m AggregationMethod) String() string {
	if name, ok := aggregationNames[m]; ok {
		return name
	}
	return fmt.Sprintf("AggregationMethod(%d)", uint8(m))
}

// Valid reports whether m is one of the declared methods.
func (m AggregationMethod) Valid() bool {
	_, ok := aggregationNames[m]
	return ok
}

// Combine folds values (in chronological order) into a single number.
// An empty slice always yields 0.
func (m AggregationMethod) Combine(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch m {
	case AggregateAverage:
		var total float64
		for _, v := range values {
			total += v
		}
		return total / float64(len(values))
	case AggregateLast:
		return values[len(values)-1]
	case AggregateMin:
		out := values[0]
		for _, v := range values[1:] {
			if v < out {
				out = v
			}
		}
		return out
	case AggregateMax:
		out := values[0]
		for _, v := range values[1:] {
			if v > out {
				out = v
			}
		}
		return out
	default:
		var total float64
		for _, v := range values {
			total += v
		}
		return total
	}
}

// MarshalText stores the method by name in JSON and YAML. The zero value
// encodes as an empty string, which decodes back to sum.
func (m AggregationMethod) MarshalText() ([]byte, error) {
	if m == 0 {
		return []byte{}, nil
	}
	if !m.Valid() {
		return nil, fmt.Errorf("invalid aggregation method %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText parses a method name.
func (m *AggregationMethod) UnmarshalText(b []byte) error {
	parsed, err := ParseAggregationMethod(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MetricDefinition is a catalog entry. It is owned by the metric catalog and
// read-only to the engine.
type MetricDefinition struct {
	Code        string            `json:"code" db:"kpi_code"`
	Unit        string            `json:"unit" db:"default_unit"`
	Aggregation AggregationMethod `json:"aggregation_method" db:"aggregation_method"`
	// Bands optionally overrides the configured status bands for this metric.
	Bands BandSet `json:"bands,omitempty" db:"-"`
}

package adapters

import (
	"encoding/json"
	"strings"
)

// ConfidenceScale names the native confidence representation of a
// backing service. Everything is normalized to [0,1] before results
// leave the adapter layer.
type ConfidenceScale string

const (
	// ScaleUnit is already a [0,1] fraction.
	ScaleUnit ConfidenceScale = "unit"
	// ScaleGrade is a letter grade A through F.
	ScaleGrade ConfidenceScale = "grade"
	// ScaleScore10 is a numeric score on [0,10].
	ScaleScore10 ConfidenceScale = "score10"
	// ScalePercent is a percentage on [0,100].
	ScalePercent ConfidenceScale = "percent"
)

// defaultConfidence is used when a native value cannot be interpreted.
const defaultConfidence = 0.75

var gradeConfidence = map[string]float64{
	"A": 0.95,
	"B": 0.80,
	"C": 0.65,
	"D": 0.45,
	"F": 0.25,
}

// NormalizeConfidence converts a native confidence value to [0,1]
// according to scale. Unrecognized or out-of-range values fall back to
// a neutral default rather than failing the query.
func NormalizeConfidence(scale ConfidenceScale, raw interface{}) float64 {
	switch scale {
	case ScaleGrade:
		s, ok := raw.(string)
		if !ok {
			return defaultConfidence
		}
		if v, ok := gradeConfidence[strings.ToUpper(strings.TrimSpace(s))]; ok {
			return v
		}
		return defaultConfidence
	case ScaleScore10:
		v, ok := asFloat(raw)
		if !ok || v < 0 || v > 10 {
			return defaultConfidence
		}
		return v / 10
	case ScalePercent:
		v, ok := asFloat(raw)
		if !ok || v < 0 || v > 100 {
			return defaultConfidence
		}
		return v / 100
	case ScaleUnit:
		v, ok := asFloat(raw)
		if !ok || v < 0 || v > 1 {
			return defaultConfidence
		}
		return v
	default:
		return defaultConfidence
	}
}

func asFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

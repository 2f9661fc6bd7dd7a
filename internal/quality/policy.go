// Package quality profiles raw source columns and turns the profile into
// completeness and consistency scores.
//
// Scores are in [0,100]. Both are weighted averages over the configured
// columns, where a required column weighs more than a nullable one:
//
//	completeness = 100 - 100 * sum(w * nullRatio) / sum(w)
//	consistency  = 100 - 100 * sum(w * anomaly) / sum(w)
//
// A column missing from the file has a null ratio of 1. A column's anomaly
// is its share of values with encoding damage, plus the share of values
// that do not follow the column's dominant shape (scaled by ShapeWeight),
// plus a small penalty per extra spelling of null, capped at 1.
package quality

import "math"

// Policy holds the tunable weights of the scoring formula.
type Policy struct {
	RequiredWeight float64
	NullableWeight float64

	// TypedShapeWeight scales shape variance for non-text columns, where a
	// single shape is expected. TextShapeWeight applies to free text.
	TypedShapeWeight float64
	TextShapeWeight  float64

	// NullVariantPenalty is added per distinct null spelling beyond the first.
	NullVariantPenalty float64

	// MaxShapes bounds the distinct shapes tracked per column.
	MaxShapes int
}

// DefaultPolicy returns the scoring policy used by the pipeline.
func DefaultPolicy() Policy {
	return Policy{
		RequiredWeight:     2,
		NullableWeight:     1,
		TypedShapeWeight:   1,
		TextShapeWeight:    0.25,
		NullVariantPenalty: 0.02,
		MaxShapes:          64,
	}
}

func (p Policy) weight(required bool) float64 {
	if required {
		return p.RequiredWeight
	}
	return p.NullableWeight
}

func (p Policy) shapeWeight(typed bool) float64 {
	if typed {
		return p.TypedShapeWeight
	}
	return p.TextShapeWeight
}

// anomaly combines a column's signals into a ratio in [0,1].
func (p Policy) anomaly(c *ColumnProfile, typed bool) float64 {
	if !c.Present {
		return 0
	}
	a := c.EncodingRatio + p.shapeWeight(typed)*(1-c.ShapeConsistency)
	if extra := len(c.NullVariants) - 1; extra > 0 {
		a += p.NullVariantPenalty * float64(extra)
	}
	return math.Min(1, a)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func clampScore(x float64) float64 {
	return math.Max(0, math.Min(100, x))
}

// Package reward folds the per-operation scores of one audit cycle into a
// single reward bounded by the operator's reputation weight.
package reward

import "math"

// FailurePenalty multiplies the cycle multiplier for each failed create,
// delete or update.
const FailurePenalty = 0.5

// Scores are the outcomes of one cycle. A nil pointer means the operation
// never produced a score.
type Scores struct {
	Create  *float64
	Updates []float64
	Delete  *float64
	Read    *float64
}

// Score returns a pointer to s, for filling Scores.
func Score(s float64) *float64 {
	return &s
}

// Multiplier is the product of the penalties for failed create, delete and
// update operations. A failed operation is one that scored zero.
func Multiplier(s Scores) float64 {
	m := 1.0
	if s.Create != nil && *s.Create == 0 {
		m *= FailurePenalty
	}
	if s.Delete != nil && *s.Delete == 0 {
		m *= FailurePenalty
	}
	for _, u := range s.Updates {
		if u == 0 {
			m *= FailurePenalty
		}
	}
	return m
}

// Curve maps a combined score in [0, 1] through 0.8·s⁷ + 0.1·s⁵ + 0.1·s³.
func Curve(s float64) float64 {
	s = math.Max(0, math.Min(1, s))
	return 0.8*math.Pow(s, 7) + 0.1*math.Pow(s, 5) + 0.1*math.Pow(s, 3)
}

// Fold computes the cycle reward. It is zero when the create or read never
// happened and never exceeds weight.
func Fold(s Scores, weight float64) float64 {
	if s.Create == nil || s.Read == nil {
		return 0
	}
	return weight * Curve(Multiplier(s)*(*s.Read))
}

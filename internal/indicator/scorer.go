package indicator

import (
	"strconv"
	"strings"
)

// Score applies the definition's rule to one raw cell value. Missing or
// malformed values score 0; that policy is fixed for the whole rule set so a
// bad cell never aborts an evaluation.
func (d Definition) Score(raw string) float64 {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0
	}
	switch d.Kind {
	case RuleCategorical:
		if pts, ok := d.Categories[strings.ToLower(value)]; ok {
			return pts
		}
		return 0
	case RuleThreshold:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0
		}
		for _, b := range d.Bands {
			if n >= b.Min && n <= b.Max {
				return b.Points
			}
		}
		return 0
	case RuleScale:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0
		}
		pts := n * d.Factor
		if pts < 0 {
			return 0
		}
		if pts > d.MaxPoints {
			return d.MaxPoints
		}
		return pts
	}
	return 0
}

// ScoreRow scores one parsed report row against every definition. The total
// is the exact sum of the per-indicator scores, nothing more.
func ScoreRow(defs []Definition, values map[string]string) (map[string]float64, float64) {
	scores := make(map[string]float64, len(defs))
	total := 0.0
	for _, d := range defs {
		s := d.Score(values[d.Name])
		scores[d.Name] = s
		total += s
	}
	return scores, total
}

// MaxTotal is the upper bound of the total score for a rule set.
func MaxTotal(defs []Definition) float64 {
	max := 0.0
	for _, d := range defs {
		max += d.MaxPoints
	}
	return max
}

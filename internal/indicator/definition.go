package indicator

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type RuleKind string

const (
	RuleCategorical RuleKind = "categorical"
	RuleThreshold   RuleKind = "threshold"
	RuleScale       RuleKind = "scale"
)

// Band is an inclusive [Min, Max] range awarding Points.
type Band struct {
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Points float64 `yaml:"points"`
}

// Definition is one indicator with its fixed scoring rule. Definitions are
// process-wide configuration, loaded once at startup and never mutated.
type Definition struct {
	Name       string             `yaml:"name"`
	Kind       RuleKind           `yaml:"kind"`
	Categories map[string]float64 `yaml:"categories,omitempty"`
	Bands      []Band             `yaml:"bands,omitempty"`
	Factor     float64            `yaml:"factor,omitempty"`
	MaxPoints  float64            `yaml:"max_points"`
}

// ScoringError reports an invalid indicator definition.
type ScoringError struct {
	Indicator string
	Reason    string
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("invalid indicator definition %q: %s", e.Indicator, e.Reason)
}

func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &ScoringError{Indicator: d.Name, Reason: "name is empty"}
	}
	if d.MaxPoints <= 0 {
		return &ScoringError{Indicator: d.Name, Reason: "max_points must be positive"}
	}
	switch d.Kind {
	case RuleCategorical:
		if len(d.Categories) == 0 {
			return &ScoringError{Indicator: d.Name, Reason: "categorical rule has no categories"}
		}
		for cat, pts := range d.Categories {
			if pts < 0 || pts > d.MaxPoints {
				return &ScoringError{Indicator: d.Name, Reason: fmt.Sprintf("category %q awards %v, outside [0, %v]", cat, pts, d.MaxPoints)}
			}
		}
	case RuleThreshold:
		if len(d.Bands) == 0 {
			return &ScoringError{Indicator: d.Name, Reason: "threshold rule has no bands"}
		}
		for _, b := range d.Bands {
			if b.Min > b.Max {
				return &ScoringError{Indicator: d.Name, Reason: fmt.Sprintf("band [%v, %v] is empty", b.Min, b.Max)}
			}
			if b.Points < 0 || b.Points > d.MaxPoints {
				return &ScoringError{Indicator: d.Name, Reason: fmt.Sprintf("band points %v outside [0, %v]", b.Points, d.MaxPoints)}
			}
		}
	case RuleScale:
		if d.Factor <= 0 {
			return &ScoringError{Indicator: d.Name, Reason: "scale rule needs a positive factor"}
		}
	default:
		return &ScoringError{Indicator: d.Name, Reason: fmt.Sprintf("unknown rule kind %q", d.Kind)}
	}
	return nil
}

// DefaultDefinitions is the deployed CIX rule set: ten indicators, each rated
// with one of the N/P/T/E compliance letters worth 0, 0.4, 0.8 and 1 point.
func DefaultDefinitions() []Definition {
	names := []string{
		"activity_data",
		"emission_factors",
		"scope_1",
		"scope_2",
		"scope_3",
		"excluded_categories",
		"consolidation",
		"audit",
		"reduction_commitments",
		"uncertainty_assessment",
	}
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, Definition{
			Name: name,
			Kind: RuleCategorical,
			Categories: map[string]float64{
				"n": 0,
				"p": 0.4,
				"t": 0.8,
				"e": 1,
			},
			MaxPoints: 1,
		})
	}
	return defs
}

// LoadDefinitions reads a YAML rule set from path, falling back to the
// built-in CIX set when path is empty. Every definition is validated.
func LoadDefinitions(path string) ([]Definition, error) {
	defs := DefaultDefinitions()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read indicator definitions: %w", err)
		}
		var file struct {
			Indicators []Definition `yaml:"indicators"`
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse indicator definitions: %w", err)
		}
		if len(file.Indicators) == 0 {
			return nil, fmt.Errorf("indicator definitions file %s lists no indicators", path)
		}
		defs = file.Indicators
	}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// Names returns the indicator names in definition order.
func Names(defs []Definition) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

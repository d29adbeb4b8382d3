package config

import (
	"os"
	"sync"
)

type IndicatorConfig struct {
	Path string
}

var (
	indicatorConfig *IndicatorConfig
	indicatorOnce   sync.Once
)

// LoadIndicatorConfig reads the optional indicator rule-set location. An
// empty path means the built-in CIX rule set is used.
func LoadIndicatorConfig() *IndicatorConfig {
	indicatorOnce.Do(func() {
		indicatorConfig = &IndicatorConfig{
			Path: os.Getenv("INDICATORS_PATH"),
		}
	})
	return indicatorConfig
}

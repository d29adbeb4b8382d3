package dto

import (
	"time"

	"github.com/google/uuid"
)

type EvaluationDTO struct {
	ID               uuid.UUID          `json:"id"`
	Filename         string             `json:"filename"`
	Organization     string             `json:"organization"`
	Period           string             `json:"period"`
	DocumentationURL string             `json:"documentation_url,omitempty"`
	RawValues        map[string]string  `json:"raw_values"`
	Scores           map[string]float64 `json:"scores"`
	TotalScore       float64            `json:"total_score"`
	BlobURL          string             `json:"blob_url"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// RejectedRowDTO reports an input row skipped during upload.
type RejectedRowDTO struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

type UploadResultDTO struct {
	Evaluation   EvaluationDTO    `json:"evaluation"`
	RejectedRows []RejectedRowDTO `json:"rejected_rows,omitempty"`
}

// IndicatorAverageDTO is one bar of the dashboard's per-indicator chart.
type IndicatorAverageDTO struct {
	Indicator string  `json:"indicator"`
	Average   float64 `json:"average"`
}

// RankingEntryDTO is one bar of the CIX-total ranking chart.
type RankingEntryDTO struct {
	Organization string  `json:"organization"`
	Period       string  `json:"period"`
	TotalScore   float64 `json:"total_score"`
}

type SummaryDTO struct {
	Evaluations       int                   `json:"evaluations"`
	MaxTotal          float64               `json:"max_total"`
	IndicatorAverages []IndicatorAverageDTO `json:"indicator_averages"`
	Ranking           []RankingEntryDTO     `json:"ranking"`
}

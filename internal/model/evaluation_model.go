package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RawValueMap stores the raw indicator cells as jsonb.
type RawValueMap map[string]string

func (m RawValueMap) Value() (driver.Value, error) {
	if m == nil {
		m = RawValueMap{}
	}
	return json.Marshal(m)
}

func (m *RawValueMap) Scan(value any) error {
	return scanJSON(value, m)
}

// ScoreMap stores the computed per-indicator scores as jsonb.
type ScoreMap map[string]float64

func (m ScoreMap) Value() (driver.Value, error) {
	if m == nil {
		m = ScoreMap{}
	}
	return json.Marshal(m)
}

func (m *ScoreMap) Scan(value any) error {
	return scanJSON(value, m)
}

func scanJSON(value, dest any) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("cannot scan %T into json map", value)
	}
}

// Evaluation is one persisted assessment: the uploaded report's metadata, its
// raw indicator values, the computed scores and the blob reference. Records
// are read-only after creation except for deletion.
type Evaluation struct {
	ID               uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Filename         string      `gorm:"type:varchar(255)" json:"filename"`
	Organization     string      `gorm:"type:varchar(255)" json:"organization"`
	Period           string      `gorm:"type:varchar(100)" json:"period"`
	DocumentationURL string      `gorm:"type:text" json:"documentation_url"`
	RawValues        RawValueMap `gorm:"type:jsonb" json:"raw_values"`
	Scores           ScoreMap    `gorm:"type:jsonb" json:"scores"`
	TotalScore       float64     `gorm:"type:float" json:"total_score"`
	BlobKey          string      `gorm:"type:varchar(512)" json:"blob_key"`
	BlobURL          string      `gorm:"type:text" json:"blob_url"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (e *Evaluation) TableName() string {
	return "evaluations"
}

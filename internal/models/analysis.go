package models

import (
	"time"

	"github.com/google/uuid"
)

type AnalysisStatus string

const (
	StatusQueued     AnalysisStatus = "queued"
	StatusProcessing AnalysisStatus = "processing"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

// Analysis is one batch: a job description scored against a set of uploaded resumes.
type Analysis struct {
	ID             uuid.UUID        `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	JobDescription string           `gorm:"type:text;not null" json:"job_description"`
	Status         AnalysisStatus   `gorm:"not null;default:'queued'" json:"status"`
	DocumentCount  int              `gorm:"not null;default:0" json:"document_count"`
	SuccessCount   int              `gorm:"not null;default:0" json:"success_count"`
	Results        []AnalysisResult `gorm:"serializer:json;type:jsonb" json:"results,omitempty"`
	ErrorMessage   string           `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt      time.Time        `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Analysis) TableName() string {
	return "analyses"
}

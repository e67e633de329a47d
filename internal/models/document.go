package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is one uploaded resume belonging to an analysis batch.
type Document struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	AnalysisID       uuid.UUID `gorm:"type:uuid;index" json:"analysis_id"`
	Position         int       `gorm:"not null;default:0" json:"position"`
	Filename         string    `gorm:"type:text" json:"filename"`
	OriginalFileName string    `gorm:"type:text" json:"original_filename"`
	MimeType         string    `gorm:"type:text" json:"mime_type"`
	FilePath         string    `gorm:"type:text" json:"file_path"`
	Size             int64     `json:"size"`
	CreatedAt        time.Time `gorm:"type:timestamp;default:now()" json:"created_at"`
	UpdatedAt        time.Time `gorm:"type:timestamp;default:now()" json:"updated_at"`
}

func (d *Document) TableName() string {
	return "documents"
}

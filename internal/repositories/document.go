package repositories

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/ats-analyzer/internal/models"
)

type DocumentRepository interface {
	Create(document *models.Document) error
	FindByAnalysisID(analysisID uuid.UUID) ([]models.Document, error)
}

type documentRepository struct {
	db *gorm.DB
}

// Create implements DocumentRepository.
func (d *documentRepository) Create(document *models.Document) error {
	if err := d.db.Create(document).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	return nil
}

// FindByAnalysisID implements DocumentRepository. Documents come back in
// upload order.
func (d *documentRepository) FindByAnalysisID(analysisID uuid.UUID) ([]models.Document, error) {
	var docs []models.Document
	if err := d.db.Where("analysis_id = ?", analysisID).Order("position ASC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to find documents: %w", err)
	}

	return docs, nil
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

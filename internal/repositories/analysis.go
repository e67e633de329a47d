package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/ats-analyzer/internal/models"
)

// ErrAnalysisNotFound is returned when no analysis has the requested ID.
var ErrAnalysisNotFound = errors.New("analysis not found")

type AnalysisRepository interface {
	Create(analysis *models.Analysis) error
	FindByID(id uuid.UUID) (*models.Analysis, error)
	ClaimQueued(id uuid.UUID) (bool, error)
	Requeue(id uuid.UUID) error
	FailStale(before time.Time, errorMsg string) (int64, error)
	UpdateResult(id uuid.UUID, results []models.AnalysisResult) error
	UpdateError(id uuid.UUID, errorMsg string) error
	FindPendingJobs(limit int) ([]models.Analysis, error)
}

type analysisRepository struct {
	db *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) AnalysisRepository {
	return &analysisRepository{db: db}
}

func (r *analysisRepository) Create(analysis *models.Analysis) error {
	if err := r.db.Create(analysis).Error; err != nil {
		return fmt.Errorf("failed to create analysis: %w", err)
	}
	return nil
}

func (r *analysisRepository) FindByID(id uuid.UUID) (*models.Analysis, error) {
	var analysis models.Analysis
	if err := r.db.Where("id = ?", id).First(&analysis).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("failed to find analysis: %w", err)
	}
	return &analysis, nil
}

// ClaimQueued moves a queued analysis to processing. It reports false when
// the analysis was not queued, e.g. because another worker claimed it.
func (r *analysisRepository) ClaimQueued(id uuid.UUID) (bool, error) {
	result := r.db.Model(&models.Analysis{}).
		Where("id = ? AND status = ?", id, models.StatusQueued).
		Updates(map[string]interface{}{
			"status":     models.StatusProcessing,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return false, fmt.Errorf("failed to claim analysis: %w", result.Error)
	}

	return result.RowsAffected == 1, nil
}

// Requeue hands a claimed analysis back to the poller.
func (r *analysisRepository) Requeue(id uuid.UUID) error {
	result := r.db.Model(&models.Analysis{}).
		Where("id = ? AND status = ?", id, models.StatusProcessing).
		Updates(map[string]interface{}{
			"status":     models.StatusQueued,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to requeue analysis: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrAnalysisNotFound
	}

	return nil
}

// FailStale marks analyses stuck in processing since before the cutoff as
// failed and returns how many rows it touched.
func (r *analysisRepository) FailStale(before time.Time, errorMsg string) (int64, error) {
	result := r.db.Model(&models.Analysis{}).
		Where("status = ? AND updated_at < ?", models.StatusProcessing, before).
		Updates(map[string]interface{}{
			"status":        models.StatusFailed,
			"error_message": errorMsg,
			"updated_at":    time.Now(),
		})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to fail stale analyses: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func (r *analysisRepository) UpdateResult(id uuid.UUID, results []models.AnalysisResult) error {
	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}

	// Updates with a map skips serializers, so the row goes through the model.
	update := models.Analysis{
		Status:        models.StatusCompleted,
		DocumentCount: len(results),
		SuccessCount:  succeeded,
		Results:       results,
		UpdatedAt:     time.Now(),
	}

	result := r.db.Model(&models.Analysis{}).
		Where("id = ?", id).
		Select("status", "document_count", "success_count", "results", "updated_at").
		Updates(&update)

	if result.Error != nil {
		return fmt.Errorf("failed to update result: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrAnalysisNotFound
	}

	return nil
}

func (r *analysisRepository) UpdateError(id uuid.UUID, errorMsg string) error {
	result := r.db.Model(&models.Analysis{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.StatusFailed,
			"error_message": errorMsg,
			"updated_at":    time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update error: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrAnalysisNotFound
	}

	return nil
}

func (r *analysisRepository) FindPendingJobs(limit int) ([]models.Analysis, error) {
	var analyses []models.Analysis
	err := r.db.
		Where("status = ?", models.StatusQueued).
		Order("created_at ASC").
		Limit(limit).
		Find(&analyses).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find pending jobs: %w", err)
	}

	return analyses, nil
}

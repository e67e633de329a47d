package services

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"alfredoptarigan/ats-analyzer/internal/models"
	"alfredoptarigan/ats-analyzer/internal/repositories"
)

// memoryAnalysisRepo is an in-memory repositories.AnalysisRepository.
type memoryAnalysisRepo struct {
	mu       sync.Mutex
	analyses map[uuid.UUID]*models.Analysis
}

func newMemoryAnalysisRepo() *memoryAnalysisRepo {
	return &memoryAnalysisRepo{analyses: map[uuid.UUID]*models.Analysis{}}
}

func (r *memoryAnalysisRepo) Create(analysis *models.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *analysis
	r.analyses[analysis.ID] = &cp
	return nil
}

func (r *memoryAnalysisRepo) FindByID(id uuid.UUID) (*models.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.analyses[id]
	if !ok {
		return nil, repositories.ErrAnalysisNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memoryAnalysisRepo) ClaimQueued(id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.analyses[id]
	if !ok || a.Status != models.StatusQueued {
		return false, nil
	}
	a.Status = models.StatusProcessing
	a.UpdatedAt = time.Now()
	return true, nil
}

func (r *memoryAnalysisRepo) Requeue(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.analyses[id]
	if !ok || a.Status != models.StatusProcessing {
		return repositories.ErrAnalysisNotFound
	}
	a.Status = models.StatusQueued
	a.UpdatedAt = time.Now()
	return nil
}

func (r *memoryAnalysisRepo) FailStale(before time.Time, errorMsg string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.analyses {
		if a.Status == models.StatusProcessing && a.UpdatedAt.Before(before) {
			a.Status = models.StatusFailed
			a.ErrorMessage = errorMsg
			a.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (r *memoryAnalysisRepo) UpdateResult(id uuid.UUID, results []models.AnalysisResult) error {
	return r.update(id, func(a *models.Analysis) {
		a.Status = models.StatusCompleted
		a.Results = results
		a.DocumentCount = len(results)
		a.SuccessCount = 0
		for _, res := range results {
			if res.Success {
				a.SuccessCount++
			}
		}
	})
}

func (r *memoryAnalysisRepo) UpdateError(id uuid.UUID, errorMsg string) error {
	return r.update(id, func(a *models.Analysis) {
		a.Status = models.StatusFailed
		a.ErrorMessage = errorMsg
	})
}

func (r *memoryAnalysisRepo) FindPendingJobs(limit int) ([]models.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []models.Analysis
	for _, a := range r.analyses {
		if a.Status == models.StatusQueued && len(pending) < limit {
			pending = append(pending, *a)
		}
	}
	return pending, nil
}

func (r *memoryAnalysisRepo) status(id uuid.UUID) models.AnalysisStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.analyses[id].Status
}

func (r *memoryAnalysisRepo) update(id uuid.UUID, fn func(*models.Analysis)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.analyses[id]
	if !ok {
		return repositories.ErrAnalysisNotFound
	}
	fn(a)
	return nil
}

type memoryDocumentRepo struct {
	mu   sync.Mutex
	docs []models.Document
}

func (r *memoryDocumentRepo) Create(document *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, *document)
	return nil
}

func (r *memoryDocumentRepo) FindByAnalysisID(analysisID uuid.UUID) ([]models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Document
	for _, d := range r.docs {
		if d.AnalysisID == analysisID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

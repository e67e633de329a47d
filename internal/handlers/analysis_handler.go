package handlers

import (
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/ats-analyzer/internal/models"
	"alfredoptarigan/ats-analyzer/internal/repositories"
	"alfredoptarigan/ats-analyzer/internal/services"
)

const (
	batchFileField  = "resumes"
	singleFileField = "resume"
)

type AnalysisHandler struct {
	analyzer       services.AnalyzerService
	storageService services.StorageService
	analysisRepo   repositories.AnalysisRepository
	docRepo        repositories.DocumentRepository
	worker         services.Worker
	maxFiles       int
	logger         *zap.Logger
}

// NewAnalysisHandler builds the analysis endpoints. The repositories and the
// worker may be nil, in which case history is not recorded and POST
// /analyses is unavailable.
func NewAnalysisHandler(
	analyzer services.AnalyzerService,
	storageService services.StorageService,
	analysisRepo repositories.AnalysisRepository,
	docRepo repositories.DocumentRepository,
	worker services.Worker,
	maxFiles int,
	log *zap.Logger,
) *AnalysisHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AnalysisHandler{
		analyzer:       analyzer,
		storageService: storageService,
		analysisRepo:   analysisRepo,
		docRepo:        docRepo,
		worker:         worker,
		maxFiles:       maxFiles,
		logger:         log.Named("analysis_handler"),
	}
}

// HandleAnalyze scores every uploaded resume and answers with the ranked batch.
func (h *AnalysisHandler) HandleAnalyze(c *fiber.Ctx) error {
	jobDescription, docs, err := h.receiveBatch(c)
	if err != nil {
		return err
	}

	analysisID := h.recordAnalysis(jobDescription, docs, models.StatusProcessing)

	results, err := h.analyzer.AnalyzeBatch(c.UserContext(), jobDescription, docs)
	if err != nil {
		if analysisID != uuid.Nil {
			if updateErr := h.analysisRepo.UpdateError(analysisID, err.Error()); updateErr != nil {
				h.logger.Warn("failed to record analysis error", zap.Error(updateErr))
			}
		}
		return err
	}

	response := models.BatchResponse{
		Success: true,
		Results: results,
	}

	if analysisID != uuid.Nil {
		if err := h.analysisRepo.UpdateResult(analysisID, results); err != nil {
			h.logger.Warn("failed to record analysis results",
				zap.String("analysis_id", analysisID.String()),
				zap.Error(err),
			)
		} else {
			response.AnalysisID = analysisID.String()
		}
	}

	return c.JSON(response)
}

// HandleEnqueue stores the batch and leaves it to the background worker.
func (h *AnalysisHandler) HandleEnqueue(c *fiber.Ctx) error {
	if h.analysisRepo == nil || h.docRepo == nil || h.worker == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "background analysis is not available")
	}

	jobDescription, docs, err := h.receiveBatch(c)
	if err != nil {
		return err
	}

	analysisID := h.recordAnalysis(jobDescription, docs, models.StatusQueued)
	if analysisID == uuid.Nil {
		h.discard(docs)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to store analysis")
	}

	h.worker.EnqueueJob(analysisID)

	return c.Status(fiber.StatusAccepted).JSON(models.EnqueueResponse{
		ID:     analysisID.String(),
		Status: string(models.StatusQueued),
	})
}

// HandleScore answers with the score of a single resume.
func (h *AnalysisHandler) HandleScore(c *fiber.Ctx) error {
	result, err := h.analyzeSingle(c)
	if err != nil {
		return err
	}

	return c.JSON(models.ScoreResponse{Score: result.Score})
}

// HandleMissing answers with the keyword and suggestion feedback of a single resume.
func (h *AnalysisHandler) HandleMissing(c *fiber.Ctx) error {
	result, err := h.analyzeSingle(c)
	if err != nil {
		return err
	}

	missing := result.Missing()
	if missing == nil {
		missing = models.TermGroups{}
	}
	suggestions := result.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	sectionScores := result.SectionScores
	if sectionScores == nil {
		sectionScores = map[string]float64{}
	}

	return c.JSON(models.MissingResponse{
		MissingKeywords:    missing,
		Suggestions:        suggestions,
		SectionScores:      sectionScores,
		SemanticSimilarity: result.SemanticSimilarity,
		KeywordMatch:       result.KeywordMatch,
	})
}

func (h *AnalysisHandler) analyzeSingle(c *fiber.Ctx) (*models.AnalysisResult, error) {
	file, err := c.FormFile(singleFileField)
	if err != nil {
		return nil, fmt.Errorf("%w: missing resume or job description", services.ErrValidation)
	}
	jobDescription := jobDescriptionOf(c)
	if jobDescription == "" {
		return nil, fmt.Errorf("%w: missing resume or job description", services.ErrValidation)
	}

	doc, err := h.storageService.SaveFile(file)
	if err != nil {
		return nil, err
	}

	return h.analyzer.AnalyzeOne(c.UserContext(), jobDescription, *doc)
}

// receiveBatch validates the multipart form before anything is written to disk.
func (h *AnalysisHandler) receiveBatch(c *fiber.Ctx) (string, []services.UploadedDocument, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return "", nil, fmt.Errorf("%w: please upload at least one resume file", services.ErrValidation)
	}

	files := form.File[batchFileField]
	if len(files) == 0 {
		return "", nil, fmt.Errorf("%w: please upload at least one resume file", services.ErrValidation)
	}
	if h.maxFiles > 0 && len(files) > h.maxFiles {
		return "", nil, fmt.Errorf("%w: at most %d resumes per request", services.ErrValidation, h.maxFiles)
	}

	jobDescription := formValue(form, "jobDescription", "job_description")
	if jobDescription == "" {
		return "", nil, fmt.Errorf("%w: please provide a job description", services.ErrValidation)
	}

	docs, err := h.saveAll(files)
	if err != nil {
		return "", nil, err
	}

	return jobDescription, docs, nil
}

func (h *AnalysisHandler) saveAll(files []*multipart.FileHeader) ([]services.UploadedDocument, error) {
	docs := make([]services.UploadedDocument, 0, len(files))
	for _, file := range files {
		doc, err := h.storageService.SaveFile(file)
		if err != nil {
			h.discard(docs)
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

// discard removes uploads that will never be analyzed.
func (h *AnalysisHandler) discard(docs []services.UploadedDocument) {
	for _, doc := range docs {
		if err := h.storageService.DeleteFile(doc.TempName); err != nil {
			h.logger.Warn("failed to clean up upload", zap.String("file", doc.TempName), zap.Error(err))
		}
	}
}

// recordAnalysis stores the batch and its documents. It returns uuid.Nil when
// history is disabled or the analysis row could not be written. Documents are
// written first so the worker's poller never picks up a batch without them.
func (h *AnalysisHandler) recordAnalysis(jobDescription string, docs []services.UploadedDocument, status models.AnalysisStatus) uuid.UUID {
	if h.analysisRepo == nil || h.docRepo == nil {
		return uuid.Nil
	}

	analysisID := uuid.New()
	for i, doc := range docs {
		record := models.Document{
			ID:               uuid.New(),
			AnalysisID:       analysisID,
			Position:         i,
			Filename:         doc.TempName,
			OriginalFileName: doc.OriginalName,
			MimeType:         doc.MimeType,
			FilePath:         doc.Path,
			Size:             doc.Size,
			CreatedAt:        time.Now(),
			UpdatedAt:        time.Now(),
		}
		if err := h.docRepo.Create(&record); err != nil {
			h.logger.Warn("failed to store document", zap.String("file", doc.OriginalName), zap.Error(err))
			return uuid.Nil
		}
	}

	analysis := models.Analysis{
		ID:             analysisID,
		JobDescription: jobDescription,
		Status:         status,
		DocumentCount:  len(docs),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := h.analysisRepo.Create(&analysis); err != nil {
		h.logger.Warn("failed to store analysis", zap.Error(err))
		return uuid.Nil
	}

	return analysis.ID
}

func jobDescriptionOf(c *fiber.Ctx) string {
	if jd := strings.TrimSpace(c.FormValue("jobDescription")); jd != "" {
		return jd
	}
	return strings.TrimSpace(c.FormValue("job_description"))
}

func formValue(form *multipart.Form, keys ...string) string {
	for _, key := range keys {
		if values := form.Value[key]; len(values) > 0 {
			if v := strings.TrimSpace(values[0]); v != "" {
				return v
			}
		}
	}
	return ""
}

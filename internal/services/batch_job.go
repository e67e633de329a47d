package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/ats-analyzer/internal/repositories"
)

// BatchJobService runs queued analyses in the background.
type BatchJobService interface {
	ProcessAnalysis(ctx context.Context, analysisID uuid.UUID) error
	FailStale(olderThan time.Duration) (int64, error)
}

type batchJobService struct {
	analysisRepo repositories.AnalysisRepository
	docRepo      repositories.DocumentRepository
	analyzer     AnalyzerService
	logger       *zap.Logger
}

func NewBatchJobService(
	analysisRepo repositories.AnalysisRepository,
	docRepo repositories.DocumentRepository,
	analyzer AnalyzerService,
	log *zap.Logger,
) BatchJobService {
	if log == nil {
		log = zap.NewNop()
	}
	return &batchJobService{
		analysisRepo: analysisRepo,
		docRepo:      docRepo,
		analyzer:     analyzer,
		logger:       log.Named("batch_job"),
	}
}

func (b *batchJobService) ProcessAnalysis(ctx context.Context, analysisID uuid.UUID) error {
	claimed, err := b.analysisRepo.ClaimQueued(analysisID)
	if err != nil {
		return err
	}
	if !claimed {
		b.logger.Debug("analysis already claimed", zap.String("analysis_id", analysisID.String()))
		return nil
	}

	log := b.logger.With(zap.String("analysis_id", analysisID.String()))
	log.Info("starting queued analysis")

	analysis, err := b.analysisRepo.FindByID(analysisID)
	if err != nil {
		b.fail(analysisID, err)
		return fmt.Errorf("failed to get analysis: %w", err)
	}

	docs, err := b.docRepo.FindByAnalysisID(analysisID)
	if err != nil {
		b.fail(analysisID, err)
		return fmt.Errorf("failed to get documents: %w", err)
	}

	uploads := make([]UploadedDocument, 0, len(docs))
	for _, doc := range docs {
		uploads = append(uploads, UploadedDocument{
			OriginalName: doc.OriginalFileName,
			TempName:     doc.Filename,
			Path:         doc.FilePath,
			MimeType:     doc.MimeType,
			Size:         doc.Size,
		})
	}

	results, err := b.analyzer.AnalyzeBatch(ctx, analysis.JobDescription, uploads)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// Entries scored under a cancelled context are not real results.
		b.requeue(analysisID)
		log.Info("queued analysis interrupted, returned to queue", zap.Error(ctxErr))
		return fmt.Errorf("analysis interrupted: %w", ctxErr)
	}
	if err != nil {
		b.fail(analysisID, err)
		return fmt.Errorf("failed to analyze batch: %w", err)
	}

	if err := b.analysisRepo.UpdateResult(analysisID, results); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	log.Info("queued analysis completed", zap.Int("documents", len(results)))
	return nil
}

// FailStale marks analyses left in processing for longer than olderThan as
// failed. Such rows belong to a process that died mid-run.
func (b *batchJobService) FailStale(olderThan time.Duration) (int64, error) {
	n, err := b.analysisRepo.FailStale(time.Now().Add(-olderThan), "analysis interrupted before completion")
	if err != nil {
		return 0, err
	}
	if n > 0 {
		b.logger.Warn("marked stale analyses as failed", zap.Int64("count", n))
	}
	return n, nil
}

func (b *batchJobService) requeue(analysisID uuid.UUID) {
	if err := b.analysisRepo.Requeue(analysisID); err != nil {
		b.logger.Error("failed to requeue analysis",
			zap.String("analysis_id", analysisID.String()),
			zap.Error(err),
		)
	}
}

func (b *batchJobService) fail(analysisID uuid.UUID, cause error) {
	if err := b.analysisRepo.UpdateError(analysisID, cause.Error()); err != nil {
		b.logger.Error("failed to record analysis error",
			zap.String("analysis_id", analysisID.String()),
			zap.Error(err),
		)
	}
}

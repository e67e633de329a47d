package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alfredoptarigan/ats-analyzer/internal/models"
)

type AnalyzerService interface {
	// AnalyzeBatch scores every document against the job description. A
	// failing document becomes a failed entry and never aborts the batch.
	// Results are sorted by score, highest first, keeping upload order on ties.
	AnalyzeBatch(ctx context.Context, jobDescription string, docs []UploadedDocument) ([]models.AnalysisResult, error)
	// AnalyzeOne scores a single document and returns engine faults as errors.
	AnalyzeOne(ctx context.Context, jobDescription string, doc UploadedDocument) (*models.AnalysisResult, error)
}

type analyzerService struct {
	engine      ScoringEngine
	pdfParser   PDFParserService
	concurrency int
	logger      *zap.Logger
}

func NewAnalyzerService(
	engine ScoringEngine,
	pdfParser PDFParserService,
	concurrency int,
	log *zap.Logger,
) AnalyzerService {
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &analyzerService{
		engine:      engine,
		pdfParser:   pdfParser,
		concurrency: concurrency,
		logger:      log.Named("analyzer"),
	}
}

func (a *analyzerService) AnalyzeBatch(ctx context.Context, jobDescription string, docs []UploadedDocument) ([]models.AnalysisResult, error) {
	if err := validateRequest(jobDescription, len(docs)); err != nil {
		return nil, err
	}
	if err := a.engine.Ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	a.logger.Info("starting batch analysis",
		zap.Int("documents", len(docs)),
		zap.Int("concurrency", a.concurrency),
		zap.String("engine", a.engine.Name()),
	)

	results := make([]models.AnalysisResult, len(docs))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i := range docs {
		g.Go(func() error {
			results[i] = a.analyzeIsolated(ctx, jobDescription, docs[i])
			return nil
		})
	}
	_ = g.Wait()

	RankResults(results)

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	a.logger.Info("batch analysis finished",
		zap.Int("documents", len(docs)),
		zap.Int("succeeded", succeeded),
		zap.Duration("elapsed", time.Since(start)),
	)

	return results, nil
}

func (a *analyzerService) AnalyzeOne(ctx context.Context, jobDescription string, doc UploadedDocument) (*models.AnalysisResult, error) {
	if err := validateRequest(jobDescription, 1); err != nil {
		return nil, err
	}
	return a.analyze(ctx, jobDescription, doc)
}

// analyzeIsolated converts any failure into a failed result entry.
func (a *analyzerService) analyzeIsolated(ctx context.Context, jobDescription string, doc UploadedDocument) models.AnalysisResult {
	result, err := a.analyze(ctx, jobDescription, doc)
	if err != nil {
		batchDocuments.WithLabelValues("failed").Inc()
		a.logger.Warn("document analysis failed",
			zap.String("filename", doc.OriginalName),
			zap.Error(err),
		)
		return models.FailedResult(doc.OriginalName, err)
	}
	batchDocuments.WithLabelValues("succeeded").Inc()
	return *result
}

func (a *analyzerService) analyze(ctx context.Context, jobDescription string, doc UploadedDocument) (*models.AnalysisResult, error) {
	pages := a.preflight(doc)

	result, err := a.engine.Invoke(ctx, EngineRequest{
		DocumentPath:     doc.Path,
		JobDescription:   jobDescription,
		OriginalFilename: doc.OriginalName,
	})
	if err != nil {
		return nil, err
	}

	if doc.OriginalName != "" {
		result.Filename = doc.OriginalName
	}
	result.DisplayName = doc.OriginalName
	result.TempFilename = doc.TempName
	if pages > 0 {
		result.PageCount = pages
	}
	result.Success = true
	result.Error = ""
	return result, nil
}

// preflight reads the page count of PDF uploads. An unreadable PDF is only
// logged; the engine has the final word on the document.
func (a *analyzerService) preflight(doc UploadedDocument) int {
	if a.pdfParser == nil || !isPDF(doc) {
		return 0
	}
	pages, err := a.pdfParser.PageCount(doc.Path)
	if err != nil {
		a.logger.Warn("pdf pre-flight failed", zap.String("filename", doc.OriginalName), zap.Error(err))
		return 0
	}
	return pages
}

func isPDF(doc UploadedDocument) bool {
	return doc.MimeType == "application/pdf" || strings.HasSuffix(strings.ToLower(doc.Path), ".pdf")
}

func validateRequest(jobDescription string, documents int) error {
	if documents == 0 {
		return fmt.Errorf("%w: please upload at least one resume file", ErrValidation)
	}
	if strings.TrimSpace(jobDescription) == "" {
		return fmt.Errorf("%w: please provide a job description", ErrValidation)
	}
	return nil
}

// RankResults orders results by score, highest first. Equal scores keep
// their original order.
func RankResults(results []models.AnalysisResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"alfredoptarigan/ats-analyzer/internal/logger"
	"alfredoptarigan/ats-analyzer/internal/models"
)

const (
	geminiTemperature = 0.2
	// maxResumeChars bounds the resume text placed in a prompt, in bytes.
	maxResumeChars = 40000
)

type geminiEngine struct {
	gemini        GeminiService
	pdfParser     PDFParserService
	promptBuilder *PromptBuilder
	timeout       time.Duration
	maxRetries    int
	logger        *zap.Logger
}

// NewGeminiEngine scores resumes with Gemini instead of the external process.
// It speaks the same result contract and reports the same errors.
func NewGeminiEngine(
	gemini GeminiService,
	pdfParser PDFParserService,
	timeout time.Duration,
	maxRetries int,
	log *zap.Logger,
) ScoringEngine {
	if timeout <= 0 {
		timeout = DefaultEngineTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &geminiEngine{
		gemini:        gemini,
		pdfParser:     pdfParser,
		promptBuilder: NewPromptBuilder(),
		timeout:       timeout,
		maxRetries:    maxRetries,
		logger:        log.Named("gemini_engine"),
	}
}

func (e *geminiEngine) Name() string {
	return "gemini"
}

// Ready implements ScoringEngine.
func (e *geminiEngine) Ready() error {
	if e.gemini == nil || e.pdfParser == nil {
		return fmt.Errorf("%w: gemini engine is not configured", ErrEngineNotFound)
	}
	return nil
}

// Invoke implements ScoringEngine.
func (e *geminiEngine) Invoke(ctx context.Context, req EngineRequest) (result *models.AnalysisResult, err error) {
	start := time.Now()
	defer func() {
		engineInvocations.WithLabelValues(e.Name(), outcomeLabel(err)).Inc()
		engineDuration.WithLabelValues(e.Name()).Observe(time.Since(start).Seconds())
	}()

	if err := e.Ready(); err != nil {
		return nil, err
	}

	if !strings.EqualFold(filepath.Ext(req.DocumentPath), ".pdf") {
		return nil, fmt.Errorf("%w: only PDF resumes can be analysed by the gemini engine", ErrEngineRejected)
	}

	resumeText, err := e.pdfParser.ExtractText(req.DocumentPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineRejected, err)
	}
	resumeText = truncateText(resumeText, maxResumeChars)

	prompt := e.promptBuilder.BuildResumeMatchPrompt(resumeText, req.JobDescription)

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	response, err := e.gemini.GenerateTextWithRetry(runCtx, prompt, geminiTemperature, e.maxRetries)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrProcess, err)
	}

	result, err = ParseEngineOutput([]byte(stripCodeFences(response)))
	if err != nil {
		e.logger.Warn("could not parse gemini response",
			zap.Error(err),
			zap.String("response_preview", logger.TruncateForLog(response, engineLogPreviewLength)),
		)
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrEngineRejected, result.Error)
	}

	if result.Filename == "" {
		result.Filename = req.OriginalFilename
	}

	e.logger.Info("gemini scoring finished",
		zap.String("document", req.DocumentPath),
		zap.Float64("score", result.Score),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// truncateText cuts s to at most limit bytes without splitting a rune.
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

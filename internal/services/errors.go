package services

import "errors"

var (
	// ErrValidation marks a request the caller can correct (missing resume or job description).
	ErrValidation = errors.New("validation failed")
	// ErrEngineNotFound means the scoring engine entry point is missing or not runnable.
	ErrEngineNotFound = errors.New("scoring engine not found")
	// ErrTimeout means the engine exceeded its wall-clock budget and was killed.
	ErrTimeout = errors.New("scoring engine timed out")
	// ErrProcess covers spawn failures and non-zero engine exits.
	ErrProcess = errors.New("scoring engine failed")
	// ErrEngineRejected means the engine ran but reported an error in its output.
	ErrEngineRejected = errors.New("scoring engine rejected document")
	// ErrMalformedOutput means no JSON object could be recovered from the engine output.
	ErrMalformedOutput = errors.New("malformed engine output")
	// ErrInvalidFilename rejects report names that are not plain .pdf basenames.
	ErrInvalidFilename = errors.New("invalid report filename")
	// ErrReportNotFound means no candidate directory holds the report.
	ErrReportNotFound = errors.New("report not found")
)

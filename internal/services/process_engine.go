package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/ats-analyzer/internal/logger"
	"alfredoptarigan/ats-analyzer/internal/models"
)

const (
	DefaultEngineTimeout   = 180 * time.Second
	DefaultMaxOutputBytes  = 10 << 20
	maxStderrBytes         = 64 << 10
	processWaitDelay       = 2 * time.Second
	engineLogPreviewLength = 300
)

type ProcessEngineOptions struct {
	// Interpreter runs the entry point, e.g. python3. Empty executes the
	// entry point directly.
	Interpreter string
	EntryPoint  string
	// OutputDir is passed to the engine as --output-dir and is also the
	// canonical served report directory.
	OutputDir       string
	Timeout         time.Duration
	MaxOutputBytes  int64
	Env             []string
	ReportURLPrefix string
}

// ProcessInvocation is the argument vector for one engine run.
type ProcessInvocation struct {
	EntryPoint       string
	DocumentPath     string
	JobDescription   string
	OriginalFilename string
	OutputDir        string
}

// Args returns the engine arguments, one element per logical argument.
func (inv ProcessInvocation) Args() []string {
	args := []string{inv.EntryPoint, inv.DocumentPath, inv.JobDescription}
	if inv.OriginalFilename != "" {
		args = append(args, "--original-filename", inv.OriginalFilename)
	}
	if inv.OutputDir != "" {
		args = append(args, "--output-dir", inv.OutputDir)
	}
	return args
}

type processEngine struct {
	opts   ProcessEngineOptions
	logger *zap.Logger
}

func NewProcessEngine(opts ProcessEngineOptions, log *zap.Logger) ScoringEngine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultEngineTimeout
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &processEngine{
		opts:   opts,
		logger: log.Named("process_engine"),
	}
}

func (e *processEngine) Name() string {
	return "process"
}

// Ready implements ScoringEngine.
func (e *processEngine) Ready() error {
	info, err := os.Stat(e.opts.EntryPoint)
	if err != nil {
		return fmt.Errorf("%w: entry point %s: %v", ErrEngineNotFound, e.opts.EntryPoint, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: entry point %s is not a regular file", ErrEngineNotFound, e.opts.EntryPoint)
	}

	if e.opts.Interpreter == "" {
		if info.Mode().Perm()&0o111 == 0 {
			return fmt.Errorf("%w: entry point %s is not executable", ErrEngineNotFound, e.opts.EntryPoint)
		}
		return nil
	}

	if _, err := exec.LookPath(e.opts.Interpreter); err != nil {
		return fmt.Errorf("%w: interpreter %s: %v", ErrEngineNotFound, e.opts.Interpreter, err)
	}
	return nil
}

// Invoke implements ScoringEngine.
func (e *processEngine) Invoke(ctx context.Context, req EngineRequest) (result *models.AnalysisResult, err error) {
	start := time.Now()
	defer func() {
		engineInvocations.WithLabelValues(e.Name(), outcomeLabel(err)).Inc()
		engineDuration.WithLabelValues(e.Name()).Observe(time.Since(start).Seconds())
	}()

	if err := e.Ready(); err != nil {
		return nil, err
	}

	e.prepareOutputDir()

	inv := e.newInvocation(req)
	log := e.logger.With(
		zap.String("document", inv.DocumentPath),
		zap.String("original_filename", req.OriginalFilename),
	)
	log.Debug("invoking scoring engine",
		zap.String("entry_point", inv.EntryPoint),
		zap.Int("job_description_length", len(inv.JobDescription)),
	)

	stdout, err := e.run(ctx, inv, log)
	if err != nil {
		log.Warn("scoring engine failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, err
	}

	result, err = ParseEngineOutput(stdout)
	if err != nil {
		log.Warn("could not parse engine output",
			zap.Error(err),
			zap.String("output_preview", logger.TruncateForLog(string(stdout), engineLogPreviewLength)),
		)
		return nil, err
	}

	if result.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrEngineRejected, result.Error)
	}

	e.normalizeReport(result)

	log.Info("scoring engine finished",
		zap.Float64("score", result.Score),
		zap.String("report", result.ReportURL),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (e *processEngine) newInvocation(req EngineRequest) ProcessInvocation {
	jobDescription := SanitizeWithReport(req.JobDescription, func(r rune) {
		e.logger.Debug("replacing non-ASCII character", zap.String("char", string(r)), zap.String("code", fmt.Sprintf("U+%04X", r)))
	})

	return ProcessInvocation{
		EntryPoint:       normalizeSeparators(e.opts.EntryPoint),
		DocumentPath:     normalizeSeparators(req.DocumentPath),
		JobDescription:   jobDescription,
		OriginalFilename: SanitizeFilename(req.OriginalFilename),
		OutputDir:        normalizeSeparators(e.opts.OutputDir),
	}
}

// prepareOutputDir creates the output directory and probes it for writes.
// Failures are logged only; the engine may still succeed.
func (e *processEngine) prepareOutputDir() {
	if e.opts.OutputDir == "" {
		return
	}
	if err := os.MkdirAll(e.opts.OutputDir, 0o755); err != nil {
		e.logger.Error("failed to create report output directory", zap.String("dir", e.opts.OutputDir), zap.Error(err))
		return
	}
	if err := probeWritable(e.opts.OutputDir); err != nil {
		e.logger.Error("report output directory is not writable", zap.String("dir", e.opts.OutputDir), zap.Error(err))
	}
}

func (e *processEngine) run(ctx context.Context, inv ProcessInvocation, log *zap.Logger) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	name, args := e.command(inv)
	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Env = append(os.Environ(), e.opts.Env...)
	cmd.WaitDelay = processWaitDelay

	stdout := &cappedBuffer{limit: e.opts.MaxOutputBytes}
	stderr := &cappedBuffer{limit: maxStderrBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, e.opts.Timeout)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcess, ctx.Err())
	}

	if stderrText := strings.TrimSpace(stderr.String()); strings.Contains(stderrText, "Error:") {
		log.Error("scoring engine reported an error", zap.String("stderr", logger.TruncateForLog(stderrText, engineLogPreviewLength)))
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = exitErr.Error()
			}
			return nil, fmt.Errorf("%w: exit code %d: %s", ErrProcess, exitErr.ExitCode(), msg)
		}
		return nil, fmt.Errorf("%w: %v", ErrProcess, err)
	}

	if stdout.truncated {
		log.Warn("engine output exceeded capture limit", zap.Int64("limit", e.opts.MaxOutputBytes))
	}
	return stdout.Bytes(), nil
}

func (e *processEngine) command(inv ProcessInvocation) (string, []string) {
	args := inv.Args()
	if e.opts.Interpreter == "" {
		return args[0], args[1:]
	}
	return e.opts.Interpreter, args
}

// normalizeReport derives the public report URL, mirrors the report into the
// served directory and cross-fills report_path/report_url.
func (e *processEngine) normalizeReport(result *models.AnalysisResult) {
	if result.ReportPath != "" {
		result.ReportPath = normalizeSeparators(result.ReportPath)
		name := path.Base(result.ReportPath)
		result.ReportURL = ReportURL(e.opts.ReportURLPrefix, name)

		if e.opts.OutputDir != "" {
			mirrorReport(result.ReportPath, e.opts.OutputDir, name, e.logger)
		}
	}

	if result.ReportPath == "" && result.ReportURL != "" {
		result.ReportPath = result.ReportURL
	}
}

// cappedBuffer keeps at most limit bytes and silently drops the rest so the
// child process is never blocked on a full pipe.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	remain := c.limit - int64(c.buf.Len())
	if remain <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > remain {
		c.buf.Write(p[:remain])
		c.truncated = true
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) Bytes() []byte {
	return c.buf.Bytes()
}

func (c *cappedBuffer) String() string {
	return c.buf.String()
}

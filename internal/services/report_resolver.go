package services

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ReportFile is a located report ready to be streamed.
type ReportFile struct {
	Name string
	Path string
	Size int64
	// Source is "served" or "producer".
	Source string
}

// Open opens the report for streaming.
func (r *ReportFile) Open() (*os.File, error) {
	return os.Open(r.Path)
}

type ReportResolver interface {
	Resolve(requested string) (*ReportFile, error)
	List() ([]string, error)
}

type reportResolver struct {
	servedDir   string
	producerDir string
	logger      *zap.Logger
}

func NewReportResolver(servedDir, producerDir string, log *zap.Logger) ReportResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &reportResolver{
		servedDir:   servedDir,
		producerDir: producerDir,
		logger:      log.Named("report_resolver"),
	}
}

// ValidateReportFilename accepts only plain basenames ending in .pdf.
func ValidateReportFilename(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidFilename)
	}
	if !strings.HasSuffix(name, ".pdf") {
		return fmt.Errorf("%w: %q is not a .pdf file", ErrInvalidFilename, name)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q contains path segments", ErrInvalidFilename, name)
	}
	return nil
}

// ReportURL builds the public path a client fetches a report from.
func ReportURL(prefix, name string) string {
	return strings.TrimRight(prefix, "/") + "/" + url.PathEscape(name)
}

// Resolve implements ReportResolver.
func (r *reportResolver) Resolve(requested string) (*ReportFile, error) {
	if err := ValidateReportFilename(requested); err != nil {
		reportLookups.WithLabelValues("invalid").Inc()
		return nil, err
	}

	r.ensureServedDir()

	for _, name := range filenameVariants(requested) {
		if report := r.lookup(name); report != nil {
			reportLookups.WithLabelValues(report.Source).Inc()
			return report, nil
		}
	}

	reportLookups.WithLabelValues("not_found").Inc()
	r.logger.Info("report not found", zap.String("filename", requested))
	return nil, fmt.Errorf("%w: %s", ErrReportNotFound, requested)
}

func (r *reportResolver) lookup(name string) *ReportFile {
	servedPath := filepath.Join(r.servedDir, name)
	if info, err := os.Stat(servedPath); err == nil && info.Mode().IsRegular() {
		return &ReportFile{Name: name, Path: servedPath, Size: info.Size(), Source: "served"}
	}

	if r.producerDir == "" {
		return nil
	}

	producerPath := filepath.Join(r.producerDir, name)
	info, err := os.Stat(producerPath)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}

	r.logger.Info("report found in producer directory", zap.String("path", producerPath))
	if mirrorReport(producerPath, r.servedDir, name, r.logger) {
		if mirrored, err := os.Stat(servedPath); err == nil {
			return &ReportFile{Name: name, Path: servedPath, Size: mirrored.Size(), Source: "producer"}
		}
	}
	return &ReportFile{Name: name, Path: producerPath, Size: info.Size(), Source: "producer"}
}

// List implements ReportResolver.
func (r *reportResolver) List() ([]string, error) {
	r.ensureServedDir()

	entries, err := os.ReadDir(r.servedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read reports directory: %w", err)
	}

	reports := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pdf") {
			continue
		}
		reports = append(reports, entry.Name())
	}
	sort.Strings(reports)
	return reports, nil
}

// ensureServedDir lazily creates the served directory on access.
func (r *reportResolver) ensureServedDir() {
	if err := os.MkdirAll(r.servedDir, 0o755); err != nil {
		r.logger.Error("failed to create reports directory", zap.String("dir", r.servedDir), zap.Error(err))
	}
}

// filenameVariants returns the decoded name first, then the other encodings
// a producer might have used. Variants that decode into path segments are
// dropped.
func filenameVariants(raw string) []string {
	candidates := []string{}
	if decoded, err := url.PathUnescape(raw); err == nil {
		candidates = append(candidates, decoded)
	}
	candidates = append(candidates, raw)
	if decoded, err := url.QueryUnescape(raw); err == nil {
		candidates = append(candidates, decoded)
	}

	seen := make(map[string]bool, len(candidates))
	variants := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if seen[c] || ValidateReportFilename(c) != nil {
			continue
		}
		seen[c] = true
		variants = append(variants, c)
	}
	return variants
}

// mirrorReport copies src into dir/name unless it already lives there. It
// reports whether dir/name holds the report afterwards. Failures are logged
// and never returned.
func mirrorReport(src, dir, name string, log *zap.Logger) bool {
	target := filepath.Join(dir, name)

	if !isRegularFile(src) {
		return false
	}
	if filepath.Clean(src) == filepath.Clean(target) || sameDir(filepath.Dir(src), dir) {
		return true
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		reportMirrors.WithLabelValues("failed").Inc()
		log.Error("failed to create reports directory", zap.String("dir", dir), zap.Error(err))
		return false
	}

	if err := copyFile(src, target); err != nil {
		reportMirrors.WithLabelValues("failed").Inc()
		log.Error("failed to copy report", zap.String("source", src), zap.String("target", target), zap.Error(err))
		return false
	}

	reportMirrors.WithLabelValues("copied").Inc()
	log.Info("copied report", zap.String("source", src), zap.String("target", target))
	return true
}

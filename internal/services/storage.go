package services

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// UploadedDocument is a resume stored under a server-assigned temp name.
type UploadedDocument struct {
	OriginalName string
	TempName     string
	Path         string
	MimeType     string
	Size         int64
}

type StorageService interface {
	SaveFile(file *multipart.FileHeader) (*UploadedDocument, error)
	GetFilePath(filename string) string
	DeleteFile(filename string) error
	EnsureUploadDir() error
}

type storageService struct {
	uploadPath   string
	maxFileSize  int64
	allowedTypes map[string]bool
}

func NewStorageService(uploadPath string, maxFileSize int64, allowedMimeTypes []string) StorageService {
	allowed := make(map[string]bool, len(allowedMimeTypes))
	for _, t := range allowedMimeTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return &storageService{
		uploadPath:   uploadPath,
		maxFileSize:  maxFileSize,
		allowedTypes: allowed,
	}
}

func (s *storageService) EnsureUploadDir() error {
	if err := os.MkdirAll(s.uploadPath, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	return nil
}

func (s *storageService) SaveFile(file *multipart.FileHeader) (*UploadedDocument, error) {
	if s.maxFileSize > 0 && file.Size > s.maxFileSize {
		return nil, fmt.Errorf("%w: %s is too large (max %d bytes)", ErrValidation, file.Filename, s.maxFileSize)
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	mimeType := detectMimeType(file, ext)
	if len(s.allowedTypes) > 0 && !s.allowedTypes[mimeType] {
		return nil, fmt.Errorf("%w: invalid file type for %s, only PDF and Word documents are allowed", ErrValidation, file.Filename)
	}

	// Generate the unique filename
	uniqueFilename := uuid.New().String() + ext
	filePath := filepath.Join(s.uploadPath, uniqueFilename)

	// Open source file
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	// Create destination file
	dst, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dst.Close()

	// Copy file
	written, err := io.Copy(dst, src)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	return &UploadedDocument{
		OriginalName: file.Filename,
		TempName:     uniqueFilename,
		Path:         filePath,
		MimeType:     mimeType,
		Size:         written,
	}, nil
}

func (s *storageService) GetFilePath(filename string) string {
	return filepath.Join(s.uploadPath, filepath.Base(filename))
}

func (s *storageService) DeleteFile(filename string) error {
	filePath := s.GetFilePath(filename)
	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// detectMimeType trusts the declared part type and falls back to the extension.
func detectMimeType(file *multipart.FileHeader, ext string) string {
	declared := file.Header.Get("Content-Type")
	if declared != "" && declared != "application/octet-stream" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			return strings.ToLower(mediaType)
		}
	}

	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		mediaType, _, _ := mime.ParseMediaType(byExt)
		return mediaType
	}
	return "application/octet-stream"
}

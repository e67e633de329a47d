package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"alfredoptarigan/ats-analyzer/internal/models"
	"alfredoptarigan/ats-analyzer/internal/services"
)

type ReportHandler struct {
	resolver services.ReportResolver
	logger   *zap.Logger
}

func NewReportHandler(resolver services.ReportResolver, log *zap.Logger) *ReportHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReportHandler{
		resolver: resolver,
		logger:   log.Named("report_handler"),
	}
}

// HandleGetReport streams a report as a PDF attachment.
func (h *ReportHandler) HandleGetReport(c *fiber.Ctx) error {
	report, err := h.resolver.Resolve(c.Params("filename"))
	if err != nil {
		return err
	}

	f, err := report.Open()
	if err != nil {
		h.logger.Error("failed to open report", zap.String("path", report.Path), zap.Error(err))
		return err
	}

	c.Attachment(report.Name)
	c.Set(fiber.HeaderContentType, "application/pdf")
	// The body stream closes the file once it has been sent.
	return c.SendStream(f, int(report.Size))
}

// HandleListReports lists the reports in the served directory.
func (h *ReportHandler) HandleListReports(c *fiber.Ctx) error {
	reports, err := h.resolver.List()
	if err != nil {
		return err
	}

	return c.JSON(models.ReportListResponse{Reports: reports})
}

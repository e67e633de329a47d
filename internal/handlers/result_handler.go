package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"alfredoptarigan/ats-analyzer/internal/models"
	"alfredoptarigan/ats-analyzer/internal/repositories"
)

type ResultHandler struct {
	analysisRepo repositories.AnalysisRepository
}

func NewResultHandler(analysisRepo repositories.AnalysisRepository) *ResultHandler {
	return &ResultHandler{
		analysisRepo: analysisRepo,
	}
}

func (h *ResultHandler) HandleGetAnalysis(c *fiber.Ctx) error {
	if h.analysisRepo == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "analysis history is not available")
	}

	analysisID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid analysis ID format")
	}

	analysis, err := h.analysisRepo.FindByID(analysisID)
	if err != nil {
		return err
	}

	response := models.AnalysisResponse{
		ID:            analysis.ID.String(),
		Status:        string(analysis.Status),
		DocumentCount: analysis.DocumentCount,
		SuccessCount:  analysis.SuccessCount,
	}

	// Results are only final once the batch completed
	if analysis.Status == models.StatusCompleted {
		response.Results = analysis.Results
	}

	if analysis.Status == models.StatusFailed && analysis.ErrorMessage != "" {
		response.ErrorMessage = &analysis.ErrorMessage
	}

	return c.JSON(response)
}

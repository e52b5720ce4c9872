package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"alfredoptarigan/applicant-screener/internal/models"
	"alfredoptarigan/applicant-screener/internal/repositories"
)

type RequestHandler struct {
	requests repositories.ScreeningRequestRepository
	matches  repositories.MatchResultRepository
}

func NewRequestHandler(requests repositories.ScreeningRequestRepository, matches repositories.MatchResultRepository) *RequestHandler {
	return &RequestHandler{
		requests: requests,
		matches:  matches,
	}
}

// HandleGetRequest handles GET /requests/:id
func (h *RequestHandler) HandleGetRequest(c *fiber.Ctx) error {
	requestID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request ID format",
		})
	}

	req, err := h.requests.FindByID(c.UserContext(), requestID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
				Error: "Screening request not found",
			})
		}
		return err
	}

	matches, err := h.matches.FindByRequest(c.UserContext(), requestID)
	if err != nil {
		return err
	}
	if matches == nil {
		matches = []models.MatchResult{}
	}

	return c.JSON(models.RequestResponse{
		Request: req,
		Matches: matches,
	})
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/applicant-screener/internal/models"
	"alfredoptarigan/applicant-screener/internal/repositories"
)

type SettingsHandler struct {
	settings repositories.SettingsRepository
}

func NewSettingsHandler(settings repositories.SettingsRepository) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// HandleGetSettings handles GET /settings
func (h *SettingsHandler) HandleGetSettings(c *fiber.Ctx) error {
	s, err := h.settings.Get(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(s)
}

// HandlePatchSettings handles PATCH /settings. Omitted fields keep their value.
func (h *SettingsHandler) HandlePatchSettings(c *fiber.Ctx) error {
	var patch models.SettingsPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request payload",
		})
	}

	current, err := h.settings.Get(c.UserContext())
	if err != nil {
		return err
	}
	if msg := validatePatch(current, patch); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid settings",
			Message: msg,
		})
	}

	updated, err := h.settings.Patch(c.UserContext(), patch)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

func validatePatch(current *models.ScreeningSettings, p models.SettingsPatch) string {
	if p.QualificationThreshold != nil && (*p.QualificationThreshold < 0 || *p.QualificationThreshold > 100) {
		return "qualification_threshold must be between 0 and 100"
	}
	if p.JobThresholds != nil {
		for jobID, t := range *p.JobThresholds {
			if t < 0 || t > 100 {
				return "job_thresholds[" + jobID + "] must be between 0 and 100"
			}
		}
	}
	if p.SimilarityThreshold != nil && (*p.SimilarityThreshold < 0 || *p.SimilarityThreshold > 1) {
		return "similarity_threshold must be between 0 and 1"
	}
	if p.ScoringModel != nil && *p.ScoringModel == "" {
		return "scoring_model must not be empty"
	}
	if p.SafeguardTopN != nil && *p.SafeguardTopN < 0 {
		return "safeguard_top_n must not be negative"
	}

	low, high := current.EscalationLow, current.EscalationHigh
	if p.EscalationLow != nil {
		low = *p.EscalationLow
	}
	if p.EscalationHigh != nil {
		high = *p.EscalationHigh
	}
	if low < 0 || high > 100 || low > high {
		return "escalation band must satisfy 0 <= escalation_low <= escalation_high <= 100"
	}
	return ""
}

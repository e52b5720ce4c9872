package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/applicant-screener/internal/models"
	"alfredoptarigan/applicant-screener/internal/services"
)

type CycleHandler struct {
	coordinator services.Coordinator
	locker      services.CycleLocker
	staleAfter  time.Duration
}

func NewCycleHandler(coordinator services.Coordinator, locker services.CycleLocker, staleAfter time.Duration) *CycleHandler {
	return &CycleHandler{
		coordinator: coordinator,
		locker:      locker,
		staleAfter:  staleAfter,
	}
}

// HandleRunCycle handles POST /cycles. It runs one cycle synchronously; a
// cycle already in progress is reported with 409.
func (h *CycleHandler) HandleRunCycle(c *fiber.Ctx) error {
	out, err := h.coordinator.RunCycle(c.UserContext())
	if err != nil {
		resp := out.Response()
		resp.Errors = append(resp.Errors, err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	}

	status := fiber.StatusOK
	if out.Status == services.OutcomeAlreadyRunning {
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(out.Response())
}

// HandleLockStatus handles GET /lock
func (h *CycleHandler) HandleLockStatus(c *fiber.Ctx) error {
	lock, err := h.locker.Status(c.UserContext())
	if err != nil {
		return err
	}

	resp := models.LockStatusResponse{
		InProgress: lock.InProgress,
		AcquiredAt: lock.AcquiredAt,
		Owner:      lock.Owner,
	}
	if lock.InProgress && lock.AcquiredAt != nil {
		resp.Stale = time.Since(*lock.AcquiredAt) > h.staleAfter
	}
	return c.JSON(resp)
}

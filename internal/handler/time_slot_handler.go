package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnxy-api/internal/dto"
	"github.com/noah-isme/learnxy-api/internal/models"
	"github.com/noah-isme/learnxy-api/pkg/response"
)

type timeSlotService interface {
	List(ctx context.Context) ([]models.TimeSlot, error)
	Get(ctx context.Context, id string) (*models.TimeSlot, error)
	Create(ctx context.Context, req dto.TimeSlotRequest) (*models.TimeSlot, error)
	Update(ctx context.Context, id string, req dto.TimeSlotRequest) (*models.TimeSlot, error)
	Delete(ctx context.Context, id string) error
}

// TimeSlotHandler exposes the periods of the school day.
type TimeSlotHandler struct {
	service timeSlotService
}

// NewTimeSlotHandler constructs a TimeSlotHandler.
func NewTimeSlotHandler(svc timeSlotService) *TimeSlotHandler {
	return &TimeSlotHandler{service: svc}
}

// List godoc
// @Summary List time slots
// @Tags Time Slots
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /time-slots [get]
func (h *TimeSlotHandler) List(c *gin.Context) {
	slots, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Get godoc
// @Summary Get time slot
// @Tags Time Slots
// @Produce json
// @Param id path string true "Time slot ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /time-slots/{id} [get]
func (h *TimeSlotHandler) Get(c *gin.Context) {
	slot, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Create godoc
// @Summary Create time slot
// @Tags Time Slots
// @Accept json
// @Produce json
// @Param payload body dto.TimeSlotRequest true "Time slot payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /time-slots [post]
func (h *TimeSlotHandler) Create(c *gin.Context) {
	var req dto.TimeSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	slot, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Update godoc
// @Summary Update time slot
// @Tags Time Slots
// @Accept json
// @Produce json
// @Param id path string true "Time slot ID"
// @Param payload body dto.TimeSlotRequest true "Time slot payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /time-slots/{id} [put]
func (h *TimeSlotHandler) Update(c *gin.Context) {
	var req dto.TimeSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	slot, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Delete godoc
// @Summary Delete time slot
// @Tags Time Slots
// @Param id path string true "Time slot ID"
// @Success 204
// @Security BearerAuth
// @Router /time-slots/{id} [delete]
func (h *TimeSlotHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

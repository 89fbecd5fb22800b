package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnxy-api/internal/dto"
	"github.com/noah-isme/learnxy-api/internal/models"
	"github.com/noah-isme/learnxy-api/internal/service"
	appErrors "github.com/noah-isme/learnxy-api/pkg/errors"
	"github.com/noah-isme/learnxy-api/pkg/response"
)

type classScheduleService interface {
	List(ctx context.Context, viewer service.Viewer, filter models.ClassScheduleFilter) ([]models.ClassScheduleDetail, error)
	ByDay(ctx context.Context, viewer service.Viewer, rawDay string) ([]models.ClassScheduleDetail, error)
	ByClass(ctx context.Context, viewer service.Viewer, rawClass string) ([]models.ClassScheduleDetail, error)
	Get(ctx context.Context, viewer service.Viewer, id string) (*models.ClassScheduleDetail, error)
	Create(ctx context.Context, req dto.ClassScheduleRequest) (*models.ClassScheduleDetail, error)
	Update(ctx context.Context, id string, req dto.ClassScheduleRequest) (*models.ClassScheduleDetail, error)
	Delete(ctx context.Context, id string) error
}

// ClassScheduleHandler exposes class schedule endpoints.
type ClassScheduleHandler struct {
	service classScheduleService
}

// NewClassScheduleHandler constructs a ClassScheduleHandler.
func NewClassScheduleHandler(svc classScheduleService) *ClassScheduleHandler {
	return &ClassScheduleHandler{service: svc}
}

// List godoc
// @Summary List class schedules
// @Description Active schedules. Students only see their own class.
// @Tags Class Schedules
// @Produce json
// @Param class query string false "Academic class"
// @Param day query string false "Day of week"
// @Param teacher query string false "Teacher user ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /class-schedules [get]
func (h *ClassScheduleHandler) List(c *gin.Context) {
	var filter models.ClassScheduleFilter
	if raw := strings.TrimSpace(c.Query("class")); raw != "" {
		class := models.AcademicClass(raw)
		if !class.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid class %q", raw)))
			return
		}
		filter.AcademicClass = &class
	}
	if raw := strings.TrimSpace(c.Query("day")); raw != "" {
		day := models.DayOfWeek(strings.ToUpper(raw))
		if !day.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid day %q", raw)))
			return
		}
		filter.DayOfWeek = &day
	}
	filter.TeacherID = strings.TrimSpace(c.Query("teacher"))

	items, err := h.service.List(c.Request.Context(), viewerFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ByDay godoc
// @Summary List class schedules for a weekday
// @Tags Class Schedules
// @Produce json
// @Param day query string true "Day of week"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /class-schedules/by-day [get]
func (h *ClassScheduleHandler) ByDay(c *gin.Context) {
	items, err := h.service.ByDay(c.Request.Context(), viewerFromContext(c), c.Query("day"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ByClass godoc
// @Summary List class schedules for a class
// @Tags Class Schedules
// @Produce json
// @Param class query string true "Academic class"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /class-schedules/by-class [get]
func (h *ClassScheduleHandler) ByClass(c *gin.Context) {
	items, err := h.service.ByClass(c.Request.Context(), viewerFromContext(c), c.Query("class"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get class schedule
// @Tags Class Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /class-schedules/{id} [get]
func (h *ClassScheduleHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), viewerFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Create class schedule
// @Tags Class Schedules
// @Accept json
// @Produce json
// @Param payload body dto.ClassScheduleRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /class-schedules [post]
func (h *ClassScheduleHandler) Create(c *gin.Context) {
	var req dto.ClassScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	item, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update class schedule
// @Tags Class Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.ClassScheduleRequest true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /class-schedules/{id} [put]
func (h *ClassScheduleHandler) Update(c *gin.Context) {
	var req dto.ClassScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	item, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete class schedule
// @Tags Class Schedules
// @Param id path string true "Schedule ID"
// @Success 204
// @Security BearerAuth
// @Router /class-schedules/{id} [delete]
func (h *ClassScheduleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

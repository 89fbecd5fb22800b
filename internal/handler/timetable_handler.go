package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnxy-api/internal/dto"
	"github.com/noah-isme/learnxy-api/internal/middleware"
	"github.com/noah-isme/learnxy-api/internal/models"
	"github.com/noah-isme/learnxy-api/internal/service"
	"github.com/noah-isme/learnxy-api/pkg/response"
)

type timetableService interface {
	List(ctx context.Context, viewer service.Viewer, filter models.TimetableFilter) ([]models.Timetable, *models.Pagination, error)
	Get(ctx context.Context, viewer service.Viewer, id string) (*models.Timetable, error)
	Create(ctx context.Context, req dto.TimetableRequest) (*models.Timetable, error)
	Update(ctx context.Context, id string, req dto.TimetableRequest) (*models.Timetable, error)
	Delete(ctx context.Context, id string) error
	Activate(ctx context.Context, id string) (*models.Timetable, error)
	ActiveWithHit(ctx context.Context) (*models.Timetable, bool, error)
	Mine(ctx context.Context, viewer service.Viewer) (*models.Timetable, error)
	Export(ctx context.Context, id, format string) (*service.ExportResult, error)
}

// TimetableHandler exposes timetable endpoints.
type TimetableHandler struct {
	service timetableService
}

// NewTimetableHandler constructs a TimetableHandler.
func NewTimetableHandler(svc timetableService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// List godoc
// @Summary List timetables
// @Description Newest first. Students only see the active timetable.
// @Tags Timetables
// @Produce json
// @Param active query bool false "Only the active timetable"
// @Param academic_year query string false "Academic year"
// @Param term query string false "Term"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	var filter models.TimetableFilter
	if raw := c.Query("active"); raw != "" {
		if val, err := strconv.ParseBool(raw); err == nil {
			filter.ActiveOnly = val
		}
	}
	filter.AcademicYear = strings.TrimSpace(c.Query("academic_year"))
	filter.Term = strings.TrimSpace(c.Query("term"))
	filter.Page, filter.PageSize = pageParams(c)

	items, pagination, err := h.service.List(c.Request.Context(), viewerFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get timetable
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), viewerFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Create timetable
// @Description New timetables are active by default and deactivate every other timetable.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.TimetableRequest true "Timetable payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables [post]
func (h *TimetableHandler) Create(c *gin.Context) {
	var req dto.TimetableRequest
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
// @Summary Update timetable
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.TimetableRequest true "Timetable payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id} [put]
func (h *TimetableHandler) Update(c *gin.Context) {
	var req dto.TimetableRequest
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
// @Summary Delete timetable
// @Tags Timetables
// @Param id path string true "Timetable ID"
// @Success 204
// @Security BearerAuth
// @Router /timetables/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Activate godoc
// @Summary Make a timetable the active one
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id}/activate [post]
func (h *TimetableHandler) Activate(c *gin.Context) {
	item, err := h.service.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Active godoc
// @Summary Get the active timetable
// @Tags Timetables
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/active [get]
func (h *TimetableHandler) Active(c *gin.Context) {
	item, hit, err := h.service.ActiveWithHit(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, item, nil, middleware.ExtractMeta(c))
}

// Mine godoc
// @Summary Get the active timetable for the signed in student's class
// @Tags Timetables
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/mine [get]
func (h *TimetableHandler) Mine(c *gin.Context) {
	item, err := h.service.Mine(c.Request.Context(), viewerFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Export godoc
// @Summary Download a timetable
// @Tags Timetables
// @Produce text/csv
// @Produce application/pdf
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Timetable ID"
// @Param format query string false "csv, pdf or xlsx" default(csv)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id}/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	result, err := h.service.Export(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Body)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classroom-insights/internal/dto"
	"github.com/noah-isme/classroom-insights/internal/middleware"
	"github.com/noah-isme/classroom-insights/internal/service"
	"github.com/noah-isme/classroom-insights/pkg/response"
)

// CourseHandler exposes the classroom catalog and model listing.
type CourseHandler struct {
	courses *service.CourseService
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(courses *service.CourseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// List godoc
// @Summary List active courses
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	courses, cached, err := h.courses.ListCourses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, dto.CourseListResponse{Courses: courses}, nil, middleware.ExtractMeta(c))
}

// Students godoc
// @Summary List the roster of a course
// @Tags Catalog
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/students [get]
func (h *CourseHandler) Students(c *gin.Context) {
	courseID := c.Param("id")
	students, cached, err := h.courses.ListStudents(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, dto.StudentListResponse{CourseID: courseID, Students: students}, nil, middleware.ExtractMeta(c))
}

// Models godoc
// @Summary List available generation models
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /models [get]
func (h *CourseHandler) Models(c *gin.Context) {
	names, def, err := h.courses.ListModels(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ModelListResponse{Models: names, Default: def}, nil)
}

// InvalidateCache godoc
// @Summary Drop cached catalog entries
// @Tags Catalog
// @Produce json
// @Success 204 {object} response.Envelope
// @Router /courses/cache [delete]
func (h *CourseHandler) InvalidateCache(c *gin.Context) {
	if err := h.courses.InvalidateCatalog(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

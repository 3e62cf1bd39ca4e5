package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-editor/internal/dto"
	"collaborative-editor/internal/middleware"
	"collaborative-editor/internal/service"
)

const (
	defaultVersionLimit = 20
	maxVersionLimit     = 100
)

// ProjectHandler 封装了项目管理相关的 HTTP 处理逻辑
type ProjectHandler struct {
	projectService *service.ProjectService
}

// NewProjectHandler 创建 ProjectHandler 实例
func NewProjectHandler(projectService *service.ProjectService) *ProjectHandler {
	if projectService == nil {
		panic("ProjectService cannot be nil for ProjectHandler")
	}
	return &ProjectHandler{projectService: projectService}
}

// currentUser 从 Context 读取 Auth 中间件设置的用户 ID。
func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		logrus.Warn("Handler: User ID not found in context, middleware missing or failed?")
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return "", false
	}
	return userID, true
}

// CreateProject 处理 POST /api/projects
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.CreateProjectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ErrorResponse(c, http.StatusBadRequest, "Invalid input: "+err.Error())
			return
		}
	}
	project, err := h.projectService.CreateProject(c.Request.Context(), userID, req.Title)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, dto.NewProjectResponse(project))
}

// ListProjects 处理 GET /api/projects
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	projects, err := h.projectService.ListProjects(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	resp := make([]dto.ProjectResponse, 0, len(projects))
	for i := range projects {
		resp = append(resp, dto.NewProjectResponse(&projects[i]))
	}
	SuccessResponse(c, http.StatusOK, resp)
}

// GetProject 处理 GET /api/projects/:id
func (h *ProjectHandler) GetProject(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	project, err := h.projectService.GetProject(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, dto.NewProjectResponse(project))
}

// UpdateProject 处理 PUT /api/projects/:id，只修改标题和协作者
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	project, err := h.projectService.UpdateProject(c.Request.Context(), userID, c.Param("id"), req.Title, req.Collaborators)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, dto.NewProjectResponse(project))
}

// ListVersions 处理 GET /api/projects/:id/versions?limit=N
func (h *ProjectHandler) ListVersions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit := defaultVersionLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			ErrorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxVersionLimit {
			n = maxVersionLimit
		}
		limit = n
	}
	versions, err := h.projectService.ListVersions(c.Request.Context(), userID, c.Param("id"), limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	resp := make([]dto.VersionResponse, 0, len(versions))
	for _, v := range versions {
		resp = append(resp, dto.NewVersionResponse(v))
	}
	SuccessResponse(c, http.StatusOK, resp)
}

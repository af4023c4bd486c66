package http

import (
	"net/http"

	"team-meetings/internal/service"

	"github.com/gin-gonic/gin"
)

// ProjectHandler 处理项目的创建、成员和删除
type ProjectHandler struct {
	projects *service.ProjectService
}

// NewProjectHandler 创建 ProjectHandler 实例
func NewProjectHandler(projects *service.ProjectService) *ProjectHandler {
	if projects == nil {
		panic("ProjectService cannot be nil for ProjectHandler")
	}
	return &ProjectHandler{projects: projects}
}

// CreateProjectRequest 是创建项目的请求体
type CreateProjectRequest struct {
	Name      string `json:"name" binding:"required,max=191"`
	MemberIDs []uint `json:"memberIds"`
}

// AddProjectMemberRequest 是添加项目成员的请求体
type AddProjectMemberRequest struct {
	UserID uint `json:"userId" binding:"required"`
}

// Create 处理 POST /projects，同时创建项目的会议房间
func (h *ProjectHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	project, room, err := h.projects.Create(c.Request.Context(), userID, req.Name, req.MemberIDs)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, gin.H{"project": project, "room": room})
}

// AddMember 处理 POST /projects/:projectId/members
func (h *ProjectHandler) AddMember(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := idParam(c, "projectId")
	if !ok {
		return
	}
	var req AddProjectMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "userId is required")
		return
	}
	project, err := h.projects.AddMember(c.Request.Context(), projectID, userID, req.UserID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, project)
}

// Delete 处理 DELETE /projects/:projectId，房间随项目一起删除
func (h *ProjectHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := idParam(c, "projectId")
	if !ok {
		return
	}
	if err := h.projects.Delete(c.Request.Context(), projectID, userID); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sports-manager/backend/internal/dto"
	"sports-manager/backend/internal/engine"
	"sports-manager/backend/internal/service"
	pkgerrors "sports-manager/backend/pkg/errors"
	"sports-manager/backend/pkg/response"
)

// AssignmentRuleHandler 分配规则模块 HTTP 处理器
type AssignmentRuleHandler struct {
	ruleSvc service.AssignmentRuleService
}

// NewAssignmentRuleHandler 创建 AssignmentRuleHandler
func NewAssignmentRuleHandler(ruleSvc service.AssignmentRuleService) *AssignmentRuleHandler {
	return &AssignmentRuleHandler{ruleSvc: ruleSvc}
}

// ListRules 分页获取分配规则
// GET /api/v1/assignment-rules
func (h *AssignmentRuleHandler) ListRules(c *gin.Context) {
	var req dto.AssignmentRuleListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.ruleSvc.List(c.Request.Context(), &req)
	if err != nil {
		response.InternalError(c)
		return
	}
	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// CreateRule 创建分配规则
// POST /api/v1/assignment-rules
func (h *AssignmentRuleHandler) CreateRule(c *gin.Context) {
	var req dto.CreateAssignmentRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数校验失败", err.Error())
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	rule, err := h.ruleSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		handleRuleError(c, err)
		return
	}
	response.Created(c, rule)
}

// GetRule 获取分配规则详情
// GET /api/v1/assignment-rules/:id
func (h *AssignmentRuleHandler) GetRule(c *gin.Context) {
	id, ok := pathID(c, "id", "规则ID")
	if !ok {
		return
	}

	rule, err := h.ruleSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		handleRuleError(c, err)
		return
	}
	response.OK(c, rule)
}

// UpdateRule 更新分配规则（需携带版本号）
// PUT /api/v1/assignment-rules/:id
func (h *AssignmentRuleHandler) UpdateRule(c *gin.Context) {
	id, ok := pathID(c, "id", "规则ID")
	if !ok {
		return
	}
	var req dto.UpdateAssignmentRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数校验失败", err.Error())
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	rule, err := h.ruleSvc.Update(c.Request.Context(), id, &req, callerID)
	if err != nil {
		handleRuleError(c, err)
		return
	}
	response.OK(c, rule)
}

// DeleteRule 软删除分配规则
// DELETE /api/v1/assignment-rules/:id
func (h *AssignmentRuleHandler) DeleteRule(c *gin.Context) {
	id, ok := pathID(c, "id", "规则ID")
	if !ok {
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.ruleSvc.Delete(c.Request.Context(), id, callerID); err != nil {
		handleRuleError(c, err)
		return
	}
	response.OK(c, nil)
}

// PreviewNextRun 预览下次执行时间
// GET /api/v1/assignment-rules/:id/next-run?from=
func (h *AssignmentRuleHandler) PreviewNextRun(c *gin.Context) {
	id, ok := pathID(c, "id", "规则ID")
	if !ok {
		return
	}
	var req dto.NextRunRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "from 必须为 RFC3339 时间")
		return
	}

	resp, err := h.ruleSvc.PreviewNextRun(c.Request.Context(), id, req.From)
	if err != nil {
		handleRuleError(c, err)
		return
	}
	response.OK(c, resp)
}

// ────────────────────── 搭档偏好 ──────────────────────

// ListPartnerPreferences 列出规则的搭档偏好
// GET /api/v1/assignment-rules/:id/partner-preferences
func (h *AssignmentRuleHandler) ListPartnerPreferences(c *gin.Context) {
	id, ok := pathID(c, "id", "规则ID")
	if !ok {
		return
	}

	list, err := h.ruleSvc.ListPartnerPreferences(c.Request.Context(), id)
	if err != nil {
		handleRuleError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// CreatePartnerPreference 新增搭档偏好
// POST /api/v1/assignment-rules/:id/partner-preferences
func (h *AssignmentRuleHandler) CreatePartnerPreference(c *gin.Context) {
	id, ok := pathID(c, "id", "规则ID")
	if !ok {
		return
	}
	var req dto.CreatePartnerPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数校验失败", err.Error())
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	pref, err := h.ruleSvc.CreatePartnerPreference(c.Request.Context(), id, &req, callerID)
	if err != nil {
		handleRuleError(c, err)
		return
	}
	response.Created(c, pref)
}

// DeletePartnerPreference 删除搭档偏好
// DELETE /api/v1/assignment-rules/:id/partner-preferences/:prefId
func (h *AssignmentRuleHandler) DeletePartnerPreference(c *gin.Context) {
	id, ok := pathID(c, "id", "规则ID")
	if !ok {
		return
	}
	prefID, ok := pathID(c, "prefId", "搭档偏好ID")
	if !ok {
		return
	}

	if err := h.ruleSvc.DeletePartnerPreference(c.Request.Context(), id, prefID); err != nil {
		handleRuleError(c, err)
		return
	}
	response.OK(c, nil)
}

// handleRuleError 统一处理分配规则模块业务错误
func handleRuleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRuleNotFound):
		response.NotFound(c, 19001, "分配规则不存在")
	case errors.Is(err, engine.ErrInvalidSchedule),
		errors.Is(err, engine.ErrInvalidRule),
		errors.Is(err, engine.ErrUnknownStrategy),
		errors.Is(err, service.ErrInvalidWeekday):
		response.ErrorWithDetails(c, http.StatusBadRequest, 19002, "规则配置无效", err.Error())
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 19003, "规则已被修改，请刷新后重试")
	case errors.Is(err, service.ErrPartnerNotFound):
		response.NotFound(c, 19009, "搭档偏好不存在")
	case errors.Is(err, service.ErrDuplicatePartner):
		response.Conflict(c, 19010, "该搭档偏好已存在")
	case errors.Is(err, service.ErrSelfPartner):
		response.BadRequest(c, 19011, "搭档偏好必须是两名不同的裁判")
	default:
		response.InternalError(c)
	}
}

package handler

import "sports-manager/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Rule *AssignmentRuleHandler
	Run  *AssignmentRunHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Rule: NewAssignmentRuleHandler(svc.Rule),
		Run:  NewAssignmentRunHandler(svc.Run),
	}
}

package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应信封；request_id 与 X-Request-ID 响应头一致，便于对照访问日志
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Details   string      `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// Pagination 分页元数据
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PageData 分页响应数据
type PageData struct {
	List       interface{} `json:"list"`
	Pagination Pagination  `json:"pagination"`
}

const codeOK = 0

func render(c *gin.Context, status int, resp Response) {
	resp.RequestID = c.GetString("request_id")
	c.JSON(status, resp)
}

// ── 成功响应 ──

// OK 200
func OK(c *gin.Context, data interface{}) {
	render(c, http.StatusOK, Response{Code: codeOK, Message: "success", Data: data})
}

// Created 201
func Created(c *gin.Context, data interface{}) {
	render(c, http.StatusCreated, Response{Code: codeOK, Message: "success", Data: data})
}

// OKPage 200 分页；pageSize<=0 按 20 计算总页数
func OKPage(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	if pageSize <= 0 {
		pageSize = 20
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	render(c, http.StatusOK, Response{
		Code:    codeOK,
		Message: "success",
		Data: PageData{
			List:       list,
			Pagination: Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages},
		},
	})
}

// ── 错误响应 ──

// Error 通用错误响应
func Error(c *gin.Context, httpStatus int, code int, message string) {
	render(c, httpStatus, Response{Code: code, Message: message})
}

// ErrorWithDetails 带详情的错误响应（如校验失败原因）
func ErrorWithDetails(c *gin.Context, httpStatus int, code int, message, details string) {
	render(c, httpStatus, Response{Code: code, Message: message, Details: details})
}

// ErrorWithData 带数据的错误响应（如提交失败时返回运行记录）
func ErrorWithData(c *gin.Context, httpStatus int, code int, message string, data interface{}) {
	render(c, httpStatus, Response{Code: code, Message: message, Data: data})
}

// ── 常见快捷方式 ──

// BadRequest 400
func BadRequest(c *gin.Context, code int, message string) {
	Error(c, http.StatusBadRequest, code, message)
}

// Unauthorized 401
func Unauthorized(c *gin.Context, code int, message string) {
	Error(c, http.StatusUnauthorized, code, message)
}

// Forbidden 403
func Forbidden(c *gin.Context, code int, message string) {
	Error(c, http.StatusForbidden, code, message)
}

// NotFound 404
func NotFound(c *gin.Context, code int, message string) {
	Error(c, http.StatusNotFound, code, message)
}

// Conflict 409
func Conflict(c *gin.Context, code int, message string) {
	Error(c, http.StatusConflict, code, message)
}

// TooManyRequests 429
func TooManyRequests(c *gin.Context, code int, message string) {
	Error(c, http.StatusTooManyRequests, code, message)
}

// InternalError 500
func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, 50000, "服务器内部错误")
}

// Upstream 外部依赖失败：超时 504，其余 502
func Upstream(c *gin.Context, code int, timeout bool, message string) {
	status := http.StatusBadGateway
	if timeout {
		status = http.StatusGatewayTimeout
	}
	Error(c, status, code, message)
}

// Unavailable 503
func Unavailable(c *gin.Context, code int, message string) {
	Error(c, http.StatusServiceUnavailable, code, message)
}

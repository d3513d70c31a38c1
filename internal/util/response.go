package util

import (
	"net/http"
	"retest_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// SubmissionResponse 提交接口的扁平响应体，答题前端依赖这个格式
type SubmissionResponse struct {
	Success         bool    `json:"success"`
	Message         string  `json:"message,omitempty"`
	ResultID        string  `json:"resultId,omitempty"`
	Score           float64 `json:"score"`
	MaxScore        float64 `json:"maxScore"`
	PercentageScore float64 `json:"percentageScore"`
	AttemptNumber   int     `json:"attemptNumber,omitempty"`
	Status          string  `json:"status,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	InternalServerError(c)
}

func SubmissionOK(c *gin.Context, resp SubmissionResponse) {
	resp.Success = true
	c.JSON(http.StatusOK, resp)
}

func SubmissionFailed(c *gin.Context, code int, message string) {
	c.JSON(code, SubmissionResponse{Success: false, Message: message})
}

// SubmissionError 客户端错误返回 400 和错误信息，其余一律 500
func SubmissionError(c *gin.Context, err error) {
	if IsClientError(err) {
		SubmissionFailed(c, http.StatusBadRequest, err.Error())
		return
	}
	logger.Log.Error("Submission failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	SubmissionFailed(c, http.StatusInternalServerError, "Failed to save test result")
}

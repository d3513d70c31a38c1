package controller

import (
	"net/http"
	"retest_backend/internal/service"
	"retest_backend/internal/util"
	"strings"

	"github.com/gin-gonic/gin"
)

type SubmissionController struct {
	Service *service.SubmissionService
}

func NewSubmissionController(svc *service.SubmissionService) *SubmissionController {
	return &SubmissionController{Service: svc}
}

// @Summary 提交测试（含重测）
// @Description 带 retestAssignmentId 时走重测流程：校验资格、分配尝试序号、幂等写入并更新重测状态
// @Tags 测试提交
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "客户端重试时保持不变的幂等键"
// @Param body body service.SubmitTestRequest true "提交内容"
// @Success 200 {object} util.SubmissionResponse
// @Failure 400 {object} util.SubmissionResponse
// @Failure 500 {object} util.SubmissionResponse
// @Router /api/tests/submit [post]
func (c *SubmissionController) Submit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.SubmissionFailed(ctx, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req service.SubmitTestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.SubmissionFailed(ctx, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req.SubmissionKey = strings.TrimSpace(ctx.GetHeader(util.IdempotencyHeader))

	res, err := c.Service.Submit(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.SubmissionError(ctx, err)
		return
	}

	util.SubmissionOK(ctx, util.SubmissionResponse{
		ResultID:        res.ResultID,
		Score:           res.Score,
		MaxScore:        res.MaxScore,
		PercentageScore: res.Percentage,
		AttemptNumber:   res.AttemptNumber,
		Status:          string(res.Status),
	})
}

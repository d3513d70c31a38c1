package controller

import (
	"errors"
	"retest_backend/internal/service"
	"retest_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type RetestController struct {
	Service *service.RetestQueryService
}

func NewRetestController(svc *service.RetestQueryService) *RetestController {
	return &RetestController{Service: svc}
}

func (c *RetestController) fail(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrForbidden):
		util.Forbidden(ctx)
	case util.IsClientError(err):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// @Summary 我的重测列表
// @Tags 重测模块
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/retests [get]
func (c *RetestController) ListMine(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	items, err := c.Service.ListStudentRetests(ctx.Request.Context(), user.UserID)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"items": items, "total": len(items)})
}

// @Summary 获取重测状态
// @Tags 重测模块
// @Produce json
// @Security BearerAuth
// @Param assignmentId path int true "重测任务ID"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Router /api/retests/{assignmentId}/status [get]
func (c *RetestController) GetStatus(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	assignmentID := util.ParamUint(ctx, "assignmentId")
	if assignmentID == 0 {
		util.BadRequest(ctx, "invalid assignment id")
		return
	}

	status, err := c.Service.GetRetestStatus(ctx.Request.Context(), user.UserID, assignmentID)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// @Summary 获取重测提交记录
// @Tags 重测模块
// @Produce json
// @Security BearerAuth
// @Param parentTestId path int true "原试卷ID"
// @Success 200 {object} util.Response
// @Router /api/retests/tests/{parentTestId}/attempts [get]
func (c *RetestController) ListAttempts(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	parentTestID := util.ParamUint(ctx, "parentTestId")
	if parentTestID == 0 {
		util.BadRequest(ctx, "invalid test id")
		return
	}

	attempts, err := c.Service.ListAttempts(ctx.Request.Context(), user.UserID, parentTestID)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"items": attempts, "total": len(attempts)})
}

// @Summary 获取重测最佳成绩
// @Tags 重测模块
// @Produce json
// @Security BearerAuth
// @Param parentTestId path int true "原试卷ID"
// @Success 200 {object} util.Response{data=model.BestRetestSummary}
// @Failure 404 {object} util.Response
// @Router /api/retests/tests/{parentTestId}/best [get]
func (c *RetestController) GetBest(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	parentTestID := util.ParamUint(ctx, "parentTestId")
	if parentTestID == 0 {
		util.BadRequest(ctx, "invalid test id")
		return
	}

	summary, err := c.Service.GetBestSummary(ctx.Request.Context(), user.UserID, parentTestID)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	util.Success(ctx, summary)
}

// @Summary 教师查看重测任务的学生进度
// @Tags 重测模块
// @Produce json
// @Security BearerAuth
// @Param assignmentId path int true "重测任务ID"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/teacher/retests/{assignmentId}/targets [get]
func (c *RetestController) ListTargets(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	assignmentID := util.ParamUint(ctx, "assignmentId")
	if assignmentID == 0 {
		util.BadRequest(ctx, "invalid assignment id")
		return
	}
	page := util.QueryIntDefault(ctx, "page", 1)
	limit := util.QueryIntDefault(ctx, "limit", util.DefaultPageSize)

	rows, total, err := c.Service.ListAssignmentTargets(ctx.Request.Context(), user.UserID, user.Role, assignmentID, page, limit)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"items": rows, "total": total, "page": page, "limit": limit})
}

package controller

import (
	"lms_assessment_backend/internal/service"
	"lms_assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type GradingController struct {
	Service *service.GradingService
}

func NewGradingController(svc *service.GradingService) *GradingController {
	return &GradingController{Service: svc}
}

// @Summary 教师评分（问答题/附件题）
// @Tags 人工评分
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "作答ID"
// @Param body body service.GradeInput true "评分"
// @Success 200 {object} util.Response{data=service.GradeResult}
// @Failure 400 {object} util.Response
// @Router /grading/responses/{id} [post]
func (c *GradingController) GradeResponse(ctx *gin.Context) {
	viewer, ok := viewerFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	var req service.GradeInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.Service.GradeResponse(ctx.Request.Context(), viewer, ctx.Param("id"), req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 待评分作答列表
// @Tags 人工评分
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response{data=[]model.Response}
// @Router /grading/assessments/{id}/pending [get]
func (c *GradingController) ListPending(ctx *gin.Context) {
	viewer, ok := viewerFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	assessmentID, ok := pathID(ctx)
	if !ok {
		return
	}

	pending, err := c.Service.ListPending(ctx.Request.Context(), viewer, assessmentID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, pending)
}

package controller

import (
	"lms_assessment_backend/internal/service"
	"lms_assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	Attempts  *service.AttemptService
	Responses *service.ResponseService
}

func NewAttemptController(attempts *service.AttemptService, responses *service.ResponseService) *AttemptController {
	return &AttemptController{Attempts: attempts, Responses: responses}
}

type CreateAttemptRequest struct {
	AssessmentID uint `json:"assessmentId" binding:"required"`
}

// RecordResponsesRequest is either a single answer (questionId set) or a
// batch under "responses".
type RecordResponsesRequest struct {
	QuestionID uint                    `json:"questionId"`
	ChoiceID   *uint                   `json:"choiceId,omitempty"`
	Text       *string                 `json:"text,omitempty"`
	Responses  []service.ResponseInput `json:"responses,omitempty" binding:"omitempty,max=500,dive"`
}

func viewerFrom(ctx *gin.Context) (service.Viewer, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		return service.Viewer{}, false
	}
	return service.Viewer{UserID: user.UserID, Role: user.Role}, true
}

func pathID(ctx *gin.Context) (uint, bool) {
	id := util.MustParseUint(ctx.Param("id"))
	if id == 0 {
		util.BadRequest(ctx, "invalid id")
		return 0, false
	}
	return id, true
}

// @Summary 开始测评尝试
// @Tags 测评尝试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body CreateAttemptRequest true "测评ID"
// @Success 201 {object} util.Response{data=model.Attempt}
// @Failure 403 {object} util.Response
// @Router /attempts [post]
func (c *AttemptController) CreateAttempt(ctx *gin.Context) {
	viewer, ok := viewerFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	var req CreateAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.Attempts.CreateAttempt(ctx.Request.Context(), viewer.UserID, req.AssessmentID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}

	util.Created(ctx, attempt)
}

// @Summary 提交作答（单题或批量）
// @Tags 测评尝试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "尝试ID"
// @Param body body RecordResponsesRequest true "作答内容"
// @Success 201 {object} util.Response{data=model.Response}
// @Failure 400 {object} util.Response
// @Router /attempts/{id}/responses [post]
func (c *AttemptController) RecordResponses(ctx *gin.Context) {
	viewer, ok := viewerFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	var req RecordResponsesRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attemptID := ctx.Param("id")
	if len(req.Responses) > 0 {
		out, err := c.Responses.RecordResponses(ctx.Request.Context(), viewer.UserID, attemptID, req.Responses)
		if err != nil {
			util.HandleServiceError(ctx, err)
			return
		}
		util.Created(ctx, out)
		return
	}

	if req.QuestionID == 0 {
		util.BadRequest(ctx, "questionId or responses is required")
		return
	}
	resp, err := c.Responses.RecordResponse(ctx.Request.Context(), viewer.UserID, attemptID, service.ResponseInput{
		QuestionID: req.QuestionID,
		ChoiceID:   req.ChoiceID,
		Text:       req.Text,
	})
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Created(ctx, resp)
}

// @Summary 上传作答附件
// @Tags 测评尝试
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "尝试ID"
// @Param questionId formData int true "题目ID"
// @Param file formData file true "附件"
// @Param text formData string false "附言"
// @Success 201 {object} util.Response{data=model.Response}
// @Router /attempts/{id}/responses/upload [post]
func (c *AttemptController) UploadResponse(ctx *gin.Context) {
	viewer, ok := viewerFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	questionID := util.MustParseUint(ctx.PostForm("questionId"))
	if questionID == 0 {
		util.BadRequest(ctx, "questionId is required")
		return
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}
	var text *string
	if v, ok := ctx.GetPostForm("text"); ok {
		text = &v
	}

	resp, err := c.Responses.RecordUpload(ctx.Request.Context(), viewer.UserID, ctx.Param("id"), questionID, fh, text)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Created(ctx, resp)
}

// @Summary 结束尝试并评分
// @Tags 测评尝试
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "尝试ID"
// @Success 200 {object} util.Response{data=service.FinishResult}
// @Failure 400 {object} util.Response
// @Router /attempts/{id}/finish [patch]
func (c *AttemptController) FinishAttempt(ctx *gin.Context) {
	viewer, ok := viewerFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	res, err := c.Attempts.FinishAttempt(ctx.Request.Context(), viewer.UserID, ctx.Param("id"))
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 获取尝试详情
// @Tags 测评尝试
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "尝试ID"
// @Success 200 {object} util.Response{data=service.AttemptDetail}
// @Router /attempts/{id} [get]
func (c *AttemptController) GetAttempt(ctx *gin.Context) {
	viewer, ok := viewerFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	detail, err := c.Attempts.GetAttempt(ctx.Request.Context(), viewer, ctx.Param("id"))
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// @Summary 查询是否可以开始新尝试
// @Tags 测评尝试
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response{data=service.PolicyDecision}
// @Router /assessments/{id}/eligibility [get]
func (c *AttemptController) Eligibility(ctx *gin.Context) {
	viewer, ok := viewerFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	assessmentID, ok := pathID(ctx)
	if !ok {
		return
	}

	decision, err := c.Attempts.Eligibility(ctx.Request.Context(), viewer.UserID, assessmentID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, decision)
}

// @Summary 我的尝试列表
// @Tags 测评尝试
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response{data=[]model.Attempt}
// @Router /assessments/{id}/attempts [get]
func (c *AttemptController) ListAttempts(ctx *gin.Context) {
	viewer, ok := viewerFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	assessmentID, ok := pathID(ctx)
	if !ok {
		return
	}

	attempts, err := c.Attempts.ListAttempts(ctx.Request.Context(), viewer.UserID, assessmentID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

// @Summary 下载作答附件（本地存储）
// @Tags 测评尝试
// @Produce octet-stream
// @Security ApiKeyAuth
// @Param filepath path string true "对象名"
// @Success 200 {file} file
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /uploads/{filepath} [get]
func (c *AttemptController) DownloadAnswerFile(ctx *gin.Context) {
	viewer, ok := viewerFrom(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	diskPath, err := c.Responses.AnswerFile(ctx.Request.Context(), viewer, ctx.Param("filepath"))
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	ctx.File(diskPath)
}

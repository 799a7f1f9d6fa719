package util

import (
	"errors"
	"net/http"

	"lms_assessment_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Reason  string      `json:"reason,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
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

// HandleServiceError 将领域错误映射为统一响应，未知错误按 500 处理
func HandleServiceError(c *gin.Context, err error) {
	var policyErr *PolicyError
	switch {
	case errors.As(err, &policyErr):
		c.JSON(http.StatusForbidden, Response{
			Code:    http.StatusForbidden,
			Message: ErrPolicyViolation.Error(),
			Reason:  string(policyErr.Reason),
		})
	case errors.Is(err, ErrOwnershipViolation), errors.Is(err, ErrPermissionDenied):
		Error(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAttemptClosed),
		errors.Is(err, ErrQuestionMismatch),
		errors.Is(err, ErrInvalidChoice),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrTimeLimitExceeded),
		errors.Is(err, ErrInvalidScore):
		BadRequest(c, err.Error())
	case errors.Is(err, ErrLockTimeout):
		Error(c, http.StatusConflict, err.Error())
	default:
		LogInternalError(c, err)
	}
}

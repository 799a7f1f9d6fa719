package middleware

import (
	"errors"
	"math"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators adds the request validation tags used by the API to
// gin's validator engine. Call once before serving.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	return v.RegisterValidation("points", validatePoints)
}

// validatePoints accepts finite, non-negative numbers. The upper bound
// depends on the question and is checked by the grading service.
func validatePoints(fl validator.FieldLevel) bool {
	f := fl.Field().Float()
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}

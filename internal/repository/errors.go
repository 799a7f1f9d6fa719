package repository

import (
	"errors"
	"fmt"
	"strings"

	"lms_assessment_backend/internal/util"

	"gorm.io/gorm"
)

// notFound maps gorm's record-not-found onto util.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, util.ErrNotFound)
	}
	return err
}

// IsDuplicateKey reports a unique-constraint violation. TranslateError covers
// mysql and postgres; the message check covers drivers without a translator.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

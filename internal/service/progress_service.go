package service

import (
	"context"
	"errors"
	"time"

	"lms_assessment_backend/internal/model"
	"lms_assessment_backend/internal/repository"
	"lms_assessment_backend/internal/util"
	"lms_assessment_backend/pkg/logger"
	"lms_assessment_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reasons a propagation did nothing.
const (
	SkipNotPassed     = "attempt_not_passed"
	SkipNoModule      = "assessment_not_linked_to_module"
	SkipModuleMissing = "module_not_found"
)

// PropagationResult lists the aggregate records a passed attempt updated.
// Records that were not touched stay nil.
type PropagationResult struct {
	ModuleProgress *model.ModuleProgress `json:"moduleProgress,omitempty"`
	CourseProgress *model.CourseProgress `json:"courseProgress,omitempty"`
	Enrollment     *model.Enrollment     `json:"enrollment,omitempty"`
	Skipped        string                `json:"skipped,omitempty"`
}

// ProgressService cascades a passed attempt into module progress, course
// progress and the enrollment, in that order.
type ProgressService struct {
	Progress *repository.ProgressRepository
}

func NewProgressService(progress *repository.ProgressRepository) *ProgressService {
	return &ProgressService{Progress: progress}
}

// OnAttemptPassed runs the cascade on tx. Missing links end the cascade
// quietly with Skipped set; only storage failures are returned as errors.
func (s *ProgressService) OnAttemptPassed(ctx context.Context, tx *gorm.DB, attempt *model.Attempt, assessment *model.Assessment) (*PropagationResult, error) {
	if attempt.Passed == nil || !*attempt.Passed {
		return &PropagationResult{Skipped: SkipNotPassed}, nil
	}
	if !assessment.HasModule() {
		return &PropagationResult{Skipped: SkipNoModule}, nil
	}

	repo := s.Progress.WithTx(tx)
	module, err := repo.FindModule(ctx, *assessment.ModuleID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return &PropagationResult{Skipped: SkipModuleMissing}, nil
		}
		return nil, err
	}

	mp, err := repo.GetOrCreateModuleProgress(ctx, attempt.UserID, module)
	if err != nil {
		return nil, err
	}
	// completion is one-way and the module keeps the best passing score
	mp.AssessmentCompleted = true
	if mp.AssessmentScore == nil || (attempt.Score != nil && *attempt.Score > *mp.AssessmentScore) {
		mp.AssessmentScore = attempt.Score
	}
	applyModuleCompletion(mp, module, time.Now())
	if err := repo.SaveModuleProgress(ctx, mp); err != nil {
		return nil, err
	}

	result := &PropagationResult{ModuleProgress: mp}
	if !mp.Completed {
		return result, nil
	}

	cp, enrollment, err := s.recomputeCourse(ctx, repo, attempt.UserID, module.CourseID)
	if err != nil {
		return nil, err
	}
	result.CourseProgress = cp
	result.Enrollment = enrollment
	return result, nil
}

// RecomputeCourseProgress rebuilds the (user, course) aggregate and the
// enrollment's percentage from module progress rows.
func (s *ProgressService) RecomputeCourseProgress(ctx context.Context, userID, courseID uint) (*model.CourseProgress, *model.Enrollment, error) {
	return s.recomputeCourse(ctx, s.Progress, userID, courseID)
}

func (s *ProgressService) recomputeCourse(ctx context.Context, repo *repository.ProgressRepository, userID, courseID uint) (*model.CourseProgress, *model.Enrollment, error) {
	total, err := repo.CountModules(ctx, courseID)
	if err != nil {
		return nil, nil, err
	}
	completed, err := repo.CountCompletedModules(ctx, userID, courseID)
	if err != nil {
		return nil, nil, err
	}

	cp := &model.CourseProgress{
		UserID:           userID,
		CourseID:         courseID,
		CompletedModules: int(completed),
		TotalModules:     int(total),
	}
	if total > 0 {
		cp.ProgressPercent = float64(completed) / float64(total) * 100
	}
	if err := repo.SaveCourseProgress(ctx, cp); err != nil {
		return nil, nil, err
	}

	enrollment, err := repo.FindEnrollment(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return cp, nil, nil
		}
		return nil, nil, err
	}
	enrollment.ProgressPercent = cp.ProgressPercent
	if cp.ProgressPercent >= 100 && enrollment.Status == model.EnrollmentActive {
		now := time.Now()
		enrollment.Status = model.EnrollmentCompleted
		enrollment.CompletedAt = &now
	}
	if err := repo.SaveEnrollment(ctx, enrollment); err != nil {
		return nil, nil, err
	}
	return cp, enrollment, nil
}

// applyModuleCompletion: a module without lesson content is complete once
// its assessment is; otherwise content and assessment weigh half each.
func applyModuleCompletion(mp *model.ModuleProgress, module *model.CourseModule, now time.Time) {
	assessmentPart := 0.0
	if mp.AssessmentCompleted {
		assessmentPart = 100
	}
	if module.HasContent {
		mp.CompletionPercent = (mp.ContentPercent + assessmentPart) / 2
	} else {
		mp.CompletionPercent = assessmentPart
	}
	if mp.CompletionPercent >= 100 && !mp.Completed {
		mp.Completed = true
		mp.CompletedAt = &now
	}
}

// propagate runs the cascade in a savepoint so a failure rolls back only the
// progress writes, never the caller's transaction.
func (s *ProgressService) propagate(ctx context.Context, tx *gorm.DB, attempt *model.Attempt, assessment *model.Assessment) *PropagationResult {
	var result *PropagationResult
	err := tx.Transaction(func(ptx *gorm.DB) error {
		r, err := s.OnAttemptPassed(ctx, ptx, attempt, assessment)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		logger.Log.Warn("progress propagation failed",
			zap.String("attempt_id", attempt.ID),
			zap.Uint("user_id", attempt.UserID),
			zap.Uint("assessment_id", assessment.ID),
			zap.Error(err),
		)
		monitoring.ProgressPropagations.WithLabelValues("failed").Inc()
		return nil
	}
	outcome := "updated"
	if result.Skipped != "" {
		outcome = "skipped"
	}
	monitoring.ProgressPropagations.WithLabelValues(outcome).Inc()
	return result
}

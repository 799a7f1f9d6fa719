package service

import (
	"context"

	"lms_assessment_backend/internal/model"
	"lms_assessment_backend/internal/repository"
	"lms_assessment_backend/internal/util"

	"gorm.io/gorm"
)

// EnrollmentChecker is the enrollment lookup consumed from the course side.
type EnrollmentChecker interface {
	IsEnrolled(ctx context.Context, userID, courseID uint) (bool, error)
}

// PolicyDecision is the outcome of CanStartAttempt. Reason is set only when
// the attempt is denied.
type PolicyDecision struct {
	Allowed           bool              `json:"allowed"`
	NextAttemptNumber int               `json:"nextAttemptNumber,omitempty"`
	PriorAttempts     int               `json:"priorAttempts"`
	Reason            util.DenialReason `json:"reason,omitempty"`
}

// Err returns the policy error for a denied decision, nil otherwise.
func (d PolicyDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return util.NewPolicyError(d.Reason)
}

type PolicyService struct {
	Attempts   *repository.AttemptRepository
	Enrollment EnrollmentChecker
}

func NewPolicyService(attempts *repository.AttemptRepository, enrollment EnrollmentChecker) *PolicyService {
	return &PolicyService{Attempts: attempts, Enrollment: enrollment}
}

// WithTx binds the attempt count to tx. The enrollment checker is kept as is
// when it cannot be bound.
func (s *PolicyService) WithTx(tx *gorm.DB) *PolicyService {
	enrollment := s.Enrollment
	if pr, ok := enrollment.(*repository.ProgressRepository); ok {
		enrollment = pr.WithTx(tx)
	}
	return &PolicyService{Attempts: s.Attempts.WithTx(tx), Enrollment: enrollment}
}

// CanStartAttempt decides whether userID may open a new attempt. It has no
// side effects; rules are checked in order and the first failing one wins.
func (s *PolicyService) CanStartAttempt(ctx context.Context, userID uint, assessment *model.Assessment) (PolicyDecision, error) {
	if !assessment.IsActive {
		return PolicyDecision{Reason: util.DenyAssessmentInactive}, nil
	}

	enrolled, err := s.Enrollment.IsEnrolled(ctx, userID, assessment.CourseID)
	if err != nil {
		return PolicyDecision{}, err
	}
	if !enrolled {
		return PolicyDecision{Reason: util.DenyNotEnrolled}, nil
	}

	count, err := s.Attempts.CountByUserAndAssessment(ctx, userID, assessment.ID)
	if err != nil {
		return PolicyDecision{}, err
	}
	prior := int(count)

	if !assessment.AllowMultipleAttempts && prior >= 1 {
		return PolicyDecision{PriorAttempts: prior, Reason: util.DenyMultipleDisabled}, nil
	}
	if assessment.MaxAttempts != nil && prior >= *assessment.MaxAttempts {
		return PolicyDecision{PriorAttempts: prior, Reason: util.DenyMaxAttempts}, nil
	}

	return PolicyDecision{Allowed: true, PriorAttempts: prior, NextAttemptNumber: prior + 1}, nil
}

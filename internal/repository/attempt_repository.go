package repository

import (
	"context"

	"lms_assessment_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) WithTx(tx *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: tx}
}

func (r *AttemptRepository) CountByUserAndAssessment(ctx context.Context, userID, assessmentID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
		Count(&count).Error
	return count, err
}

// Create inserts a new attempt. A duplicate (user, assessment, attempt_number)
// surfaces as an error for which IsDuplicateKey reports true.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.DB.WithContext(ctx).Create(a).Error
}

func (r *AttemptRepository) FindByID(ctx context.Context, id string) (*model.Attempt, error) {
	var a model.Attempt
	if err := r.DB.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "attempt")
	}
	return &a, nil
}

func (r *AttemptRepository) FindWithResponses(ctx context.Context, id string) (*model.Attempt, error) {
	var a model.Attempt
	err := r.DB.WithContext(ctx).
		Preload("Responses", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_id asc")
		}).
		First(&a, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "attempt")
	}
	return &a, nil
}

// FindForUpdate loads the attempt with a row lock. It must run inside a
// transaction; the lock is held until that transaction ends.
func (r *AttemptRepository) FindForUpdate(ctx context.Context, id string) (*model.Attempt, error) {
	q := r.DB.WithContext(ctx)
	// sqlite has no row locks; its single writer already serializes us
	if q.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var a model.Attempt
	if err := q.First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "attempt")
	}
	return &a, nil
}

func (r *AttemptRepository) ListByUserAndAssessment(ctx context.Context, userID, assessmentID uint) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
		Order("attempt_number asc").
		Find(&attempts).Error
	return attempts, err
}

// SaveResult persists the finish fields together.
func (r *AttemptRepository) SaveResult(ctx context.Context, a *model.Attempt) error {
	return r.DB.WithContext(ctx).Model(a).
		Select("ended_at", "score", "passed").
		Updates(map[string]interface{}{
			"ended_at": a.EndedAt,
			"score":    a.Score,
			"passed":   a.Passed,
		}).Error
}

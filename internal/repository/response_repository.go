package repository

import (
	"context"

	"lms_assessment_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResponseRepository struct {
	DB *gorm.DB
}

func NewResponseRepository(db *gorm.DB) *ResponseRepository {
	return &ResponseRepository{DB: db}
}

func (r *ResponseRepository) WithTx(tx *gorm.DB) *ResponseRepository {
	return &ResponseRepository{DB: tx}
}

// answerColumns are overwritten when a question is answered again.
var answerColumns = []string{
	"selected_choice_id",
	"text_answer",
	"file_ref",
	"file_meta",
	"is_correct",
	"points_earned",
	"feedback",
	"graded_by",
	"graded_at",
	"updated_at",
}

// Upsert writes the single response for (attempt, question). A second write
// replaces the previous answer and its grading; resp is reloaded afterwards
// so it carries the stored row's id.
func (r *ResponseRepository) Upsert(ctx context.Context, resp *model.Response) error {
	db := r.DB.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns(answerColumns),
	}).Create(resp).Error
	if err != nil {
		return err
	}
	// resp.ID may be the id generated for the losing insert
	var stored model.Response
	err = db.Where("attempt_id = ? AND question_id = ?", resp.AttemptID, resp.QuestionID).
		Take(&stored).Error
	if err != nil {
		return err
	}
	*resp = stored
	return nil
}

func (r *ResponseRepository) FindByID(ctx context.Context, id string) (*model.Response, error) {
	var resp model.Response
	if err := r.DB.WithContext(ctx).First(&resp, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "response")
	}
	return &resp, nil
}

func (r *ResponseRepository) ListByAttempt(ctx context.Context, attemptID string) ([]model.Response, error) {
	var responses []model.Response
	err := r.DB.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("question_id asc").
		Find(&responses).Error
	return responses, err
}

// ListPendingByAssessment lists ungraded manual responses on finished attempts.
func (r *ResponseRepository) ListPendingByAssessment(ctx context.Context, assessmentID uint) ([]model.Response, error) {
	var responses []model.Response
	err := r.DB.WithContext(ctx).
		Joins("JOIN attempts ON attempts.id = responses.attempt_id").
		Where("attempts.assessment_id = ? AND attempts.ended_at IS NOT NULL", assessmentID).
		Where("responses.is_correct IS NULL AND responses.graded_at IS NULL").
		Order("responses.created_at asc").
		Find(&responses).Error
	return responses, err
}

// SaveGrade stores a grader's verdict on one response.
func (r *ResponseRepository) SaveGrade(ctx context.Context, resp *model.Response) error {
	return r.DB.WithContext(ctx).Model(resp).
		Select("is_correct", "points_earned", "feedback", "graded_by", "graded_at").
		Updates(map[string]interface{}{
			"is_correct":    resp.IsCorrect,
			"points_earned": resp.PointsEarned,
			"feedback":      resp.Feedback,
			"graded_by":     resp.GradedBy,
			"graded_at":     resp.GradedAt,
		}).Error
}

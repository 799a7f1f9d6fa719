package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lms_assessment_backend/internal/model"
	"lms_assessment_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AssessmentRepository reads the question bank. The engine never edits
// assessments, questions or choices except through CreateChoice.
type AssessmentRepository struct {
	DB       *gorm.DB
	Redis    *redis.Client
	CacheTTL time.Duration
}

func NewAssessmentRepository(db *gorm.DB, rdb *redis.Client, cacheTTL time.Duration) *AssessmentRepository {
	return &AssessmentRepository{DB: db, Redis: rdb, CacheTTL: cacheTTL}
}

func (r *AssessmentRepository) WithTx(tx *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: tx, Redis: r.Redis, CacheTTL: r.CacheTTL}
}

func bankCacheKey(assessmentID uint) string {
	return fmt.Sprintf("assessment:bank:%d", assessmentID)
}

func (r *AssessmentRepository) FindAssessmentByID(ctx context.Context, id uint) (*model.Assessment, error) {
	var a model.Assessment
	if err := r.DB.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, notFound(err, "assessment")
	}
	return &a, nil
}

// LoadQuestionBank loads the assessment with its questions and choices in
// display order. The bank is cached in Redis when a client is configured.
func (r *AssessmentRepository) LoadQuestionBank(ctx context.Context, id uint) (*model.Assessment, error) {
	if a, ok := r.cachedBank(ctx, id); ok {
		return a, nil
	}

	var a model.Assessment
	err := r.DB.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order asc, id asc")
		}).
		Preload("Questions.Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order asc, id asc")
		}).
		First(&a, id).Error
	if err != nil {
		return nil, notFound(err, "assessment")
	}

	r.cacheBank(ctx, &a)
	return &a, nil
}

func (r *AssessmentRepository) cachedBank(ctx context.Context, id uint) (*model.Assessment, bool) {
	if r.Redis == nil || r.CacheTTL <= 0 {
		return nil, false
	}
	data, err := r.Redis.Get(ctx, bankCacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Log.Warn("question bank cache read failed", zap.Uint("assessment_id", id), zap.Error(err))
		}
		return nil, false
	}
	var a model.Assessment
	if err := json.Unmarshal(data, &a); err != nil {
		logger.Log.Warn("question bank cache entry corrupt", zap.Uint("assessment_id", id), zap.Error(err))
		return nil, false
	}
	return &a, true
}

func (r *AssessmentRepository) cacheBank(ctx context.Context, a *model.Assessment) {
	if r.Redis == nil || r.CacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := r.Redis.Set(ctx, bankCacheKey(a.ID), data, r.CacheTTL).Err(); err != nil {
		logger.Log.Warn("question bank cache write failed", zap.Uint("assessment_id", a.ID), zap.Error(err))
	}
}

// InvalidateBank drops the cached bank after a choice was added to it.
func (r *AssessmentRepository) InvalidateBank(ctx context.Context, assessmentID uint) {
	if r.Redis == nil {
		return
	}
	if err := r.Redis.Del(ctx, bankCacheKey(assessmentID)).Err(); err != nil {
		logger.Log.Warn("question bank cache invalidation failed", zap.Uint("assessment_id", assessmentID), zap.Error(err))
	}
}

// QuestionExists tells an unknown question id apart from one that belongs
// to a different assessment.
func (r *AssessmentRepository) QuestionExists(ctx context.Context, questionID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Question{}).Where("id = ?", questionID).Count(&count).Error
	return count > 0, err
}

// CreateChoice is only used by the true/false fallback when an authored
// question is missing one of its two choices.
func (r *AssessmentRepository) CreateChoice(ctx context.Context, c *model.Choice) error {
	return r.DB.WithContext(ctx).Create(c).Error
}

// TrueFalseIssue describes a true/false question whose choices are not
// exactly one "true" and one "false" with a single correct answer.
type TrueFalseIssue struct {
	AssessmentID uint   `json:"assessmentId" yaml:"assessment_id"`
	QuestionID   uint   `json:"questionId" yaml:"question_id"`
	ChoiceCount  int    `json:"choiceCount" yaml:"choice_count"`
	CorrectCount int    `json:"correctCount" yaml:"correct_count"`
	Problem      string `json:"problem" yaml:"problem"`
}

// AuditTrueFalseQuestions lists true/false questions with malformed choices.
func (r *AssessmentRepository) AuditTrueFalseQuestions(ctx context.Context) ([]TrueFalseIssue, error) {
	var questions []model.Question
	err := r.DB.WithContext(ctx).
		Preload("Choices").
		Where("type = ?", model.TrueFalse).
		Order("assessment_id asc, id asc").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}

	var issues []TrueFalseIssue
	for _, q := range questions {
		issue := TrueFalseIssue{AssessmentID: q.AssessmentID, QuestionID: q.ID, ChoiceCount: len(q.Choices)}
		hasTrue, hasFalse := false, false
		for _, c := range q.Choices {
			if c.IsCorrect {
				issue.CorrectCount++
			}
			switch strings.ToLower(strings.TrimSpace(c.Text)) {
			case "true":
				hasTrue = true
			case "false":
				hasFalse = true
			}
		}
		switch {
		case issue.ChoiceCount != 2:
			issue.Problem = "expected exactly two choices"
		case !hasTrue || !hasFalse:
			issue.Problem = `choices must be "true" and "false"`
		case issue.CorrectCount != 1:
			issue.Problem = "expected exactly one correct choice"
		default:
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

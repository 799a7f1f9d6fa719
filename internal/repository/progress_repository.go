package repository

import (
	"context"
	"errors"

	"lms_assessment_backend/internal/model"
	"lms_assessment_backend/internal/util"

	"gorm.io/gorm"
)

// ProgressRepository is the module/course progress store.
type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) WithTx(tx *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: tx}
}

func (r *ProgressRepository) FindModule(ctx context.Context, moduleID uint) (*model.CourseModule, error) {
	var m model.CourseModule
	if err := r.DB.WithContext(ctx).First(&m, moduleID).Error; err != nil {
		return nil, notFound(err, "module")
	}
	return &m, nil
}

// GetOrCreateModuleProgress returns the (user, module) row, creating it if needed.
func (r *ProgressRepository) GetOrCreateModuleProgress(ctx context.Context, userID uint, module *model.CourseModule) (*model.ModuleProgress, error) {
	var mp model.ModuleProgress
	err := r.DB.WithContext(ctx).
		Where(model.ModuleProgress{UserID: userID, ModuleID: module.ID}).
		Attrs(model.ModuleProgress{CourseID: module.CourseID}).
		FirstOrCreate(&mp).Error
	if err != nil {
		return nil, err
	}
	return &mp, nil
}

func (r *ProgressRepository) SaveModuleProgress(ctx context.Context, mp *model.ModuleProgress) error {
	return r.DB.WithContext(ctx).Save(mp).Error
}

func (r *ProgressRepository) CountModules(ctx context.Context, courseID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.CourseModule{}).
		Where("course_id = ?", courseID).
		Count(&count).Error
	return count, err
}

func (r *ProgressRepository) CountCompletedModules(ctx context.Context, userID, courseID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.ModuleProgress{}).
		Joins("JOIN course_modules ON course_modules.id = module_progress.module_id AND course_modules.deleted_at IS NULL").
		Where("module_progress.user_id = ? AND module_progress.course_id = ? AND module_progress.completed = ?", userID, courseID, true).
		Count(&count).Error
	return count, err
}

// SaveCourseProgress upserts the (user, course) aggregate.
func (r *ProgressRepository) SaveCourseProgress(ctx context.Context, cp *model.CourseProgress) error {
	db := r.DB.WithContext(ctx)
	var existing model.CourseProgress
	err := db.Where(model.CourseProgress{UserID: cp.UserID, CourseID: cp.CourseID}).
		FirstOrCreate(&existing).Error
	if err != nil {
		return err
	}
	cp.ID = existing.ID
	cp.CreatedAt = existing.CreatedAt
	return db.Save(cp).Error
}

func (r *ProgressRepository) FindEnrollment(ctx context.Context, userID, courseID uint) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&e).Error
	if err != nil {
		return nil, notFound(err, "enrollment")
	}
	return &e, nil
}

// IsEnrolled reports whether the user's enrollment in the course lets them
// take assessments (see model.Enrollment.Eligible).
func (r *ProgressRepository) IsEnrolled(ctx context.Context, userID, courseID uint) (bool, error) {
	e, err := r.FindEnrollment(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return e.Eligible(), nil
}

func (r *ProgressRepository) SaveEnrollment(ctx context.Context, e *model.Enrollment) error {
	return r.DB.WithContext(ctx).Save(e).Error
}

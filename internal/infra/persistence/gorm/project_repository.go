package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"team-meetings/internal/domain"
	"team-meetings/internal/repository"
)

// GormProjectRepository 是 ProjectRepository 接口的 GORM 实现
type GormProjectRepository struct {
	db *gorm.DB
}

// NewGormProjectRepository 创建 GormProjectRepository 实例
func NewGormProjectRepository(db *gorm.DB) *GormProjectRepository {
	if db == nil {
		panic("database connection cannot be nil for GormProjectRepository")
	}
	return &GormProjectRepository{db: db}
}

func (r *GormProjectRepository) Create(ctx context.Context, project *domain.Project) error {
	if err := r.db.WithContext(ctx).Create(project).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create project '%s': %w", project.Name, err)
	}
	return nil
}

func (r *GormProjectRepository) FindByID(ctx context.Context, id uint) (*domain.Project, error) {
	var project domain.Project
	if err := r.db.WithContext(ctx).Preload("Members").First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrProjectNotFound
		}
		return nil, fmt.Errorf("gorm: find project by id %d: %w", id, err)
	}
	return &project, nil
}

func (r *GormProjectRepository) AddMember(ctx context.Context, projectID uint, member domain.ProjectMember) (bool, error) {
	member.ID = 0
	member.ProjectID = projectID
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member)
	if result.Error != nil {
		return false, fmt.Errorf("gorm: add member %d to project %d: %w", member.UserID, projectID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Delete 在一个事务中删除项目及其成员
func (r *GormProjectRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&domain.ProjectMember{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&domain.Project{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repository.ErrProjectNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return err
		}
		return fmt.Errorf("gorm: delete project %d: %w", id, err)
	}
	return nil
}

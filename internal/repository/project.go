package repository

import (
	"context"

	"team-meetings/internal/domain"
)

// ProjectRepository 定义了项目的存储操作。
type ProjectRepository interface {
	Create(ctx context.Context, project *domain.Project) error
	FindByID(ctx context.Context, id uint) (*domain.Project, error)
	AddMember(ctx context.Context, projectID uint, member domain.ProjectMember) (bool, error)
	Delete(ctx context.Context, id uint) error
}

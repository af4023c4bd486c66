package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"team-meetings/internal/domain"
)

// MigrateDB 迁移所有模型的表结构。
// 成员表依赖 rooms/projects，按依赖顺序迁移。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	models := []interface{}{
		&domain.User{},
		&domain.Project{},
		&domain.ProjectMember{},
		&domain.Room{},
		&domain.RoomMember{},
		&domain.MeetingMessage{},
	}
	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			logrus.Errorf("Failed to auto-migrate %T: %v", m, err)
			return fmt.Errorf("failed to migrate %T: %w", m, err)
		}
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

package domain

import (
	"time"

	"github.com/samber/lo"
)

// Project 是房间的所属项目，每个项目恰好对应一个会议房间。
type Project struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Name      string          `gorm:"size:191;not null" json:"name"`
	CreatorID uint            `gorm:"index;not null" json:"creatorId"`
	Members   []ProjectMember `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"members"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

// ProjectMember 是项目成员名单中的一项。
type ProjectMember struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	ProjectID uint      `gorm:"uniqueIndex:idx_project_member;not null" json:"-"`
	UserID    uint      `gorm:"uniqueIndex:idx_project_member;not null" json:"userId"`
	AddedAt   time.Time `json:"addedAt"`
}

func (p *Project) OwnerID() uint { return p.CreatorID }

func (p *Project) HasMember(userID uint) bool {
	return lo.ContainsBy(p.Members, func(m ProjectMember) bool { return m.UserID == userID })
}

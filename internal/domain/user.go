// Package domain 定义会议协调服务的核心模型和状态转换。
package domain

import "time"

// User 表示应用中的用户。
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(191);uniqueIndex:idx_username;not null" json:"username"`
	Password  string    `gorm:"type:text;not null" json:"-"` // bcrypt 哈希
	Email     string    `gorm:"type:varchar(191);uniqueIndex:idx_email" json:"email,omitempty"`
	Avatar    string    `gorm:"type:varchar(512)" json:"avatar,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// UserProfile 是可以公开给房间其他成员的用户字段。
type UserProfile struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Profile 返回用户的公开资料。
func (u *User) Profile() UserProfile {
	if u == nil {
		return UserProfile{}
	}
	return UserProfile{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
}

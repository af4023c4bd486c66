package domain

import "time"

// MessageTypeText 是目前唯一的聊天消息类型。
const MessageTypeText = "text"

// MeetingMessage 是持久化的房间聊天消息，与中继的临时聊天分开存储。
type MeetingMessage struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"` // UUID
	RoomID    uint      `gorm:"index:idx_room_created;not null" json:"roomId"`
	SenderID  uint      `gorm:"index;not null" json:"-"`
	Sender    *User     `gorm:"foreignKey:SenderID" json:"-"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Type      string    `gorm:"size:20;not null" json:"type"`
	CreatedAt time.Time `gorm:"index:idx_room_created" json:"timestamp"`
}

package domain

import (
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"
)

// MemberRole 是房间成员的角色。
type MemberRole string

const (
	RoleHost        MemberRole = "host"
	RoleModerator   MemberRole = "moderator"
	RoleParticipant MemberRole = "participant"
)

// Valid 报告角色是否为已知取值。
func (r MemberRole) Valid() bool {
	return r == RoleHost || r == RoleModerator || r == RoleParticipant
}

// PresenceStatus 是成员的在线状态。
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
	StatusBusy    PresenceStatus = "busy"
)

// Room 表示一个项目的会议房间：成员名单、设置、当前会议、统计和历史。
type Room struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	ProjectID  uint         `gorm:"uniqueIndex;not null" json:"projectId"`
	Name       string       `gorm:"size:191;not null" json:"name"`
	CreatorID  uint         `gorm:"index;not null" json:"creatorId"`
	AccessCode string       `gorm:"uniqueIndex;size:32;not null" json:"accessCode"`
	Members    []RoomMember `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"members"`
	Settings   RoomSettings `gorm:"embedded;embeddedPrefix:setting_" json:"settings"`

	// MeetingActive 单独成列以便建立索引和排序，CurrentMeeting 保存其余的会议状态。
	MeetingActive  bool           `gorm:"index;not null" json:"meetingActive"`
	CurrentMeeting CurrentMeeting `gorm:"serializer:json;type:json" json:"currentMeeting"`

	Stats   RoomStats       `gorm:"embedded;embeddedPrefix:stats_" json:"stats"`
	History []MeetingRecord `gorm:"serializer:json;type:json" json:"-"`

	// Version 用于会议状态写入的乐观锁。
	Version   uint      `gorm:"not null;default:0" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// RoomMember 是房间名单中的一项，(room_id, user_id) 唯一。
type RoomMember struct {
	ID             uint           `gorm:"primaryKey" json:"-"`
	RoomID         uint           `gorm:"uniqueIndex:idx_room_member;not null" json:"-"`
	UserID         uint           `gorm:"uniqueIndex:idx_room_member;not null" json:"userId"`
	Role           MemberRole     `gorm:"size:20;not null" json:"role"`
	Status         PresenceStatus `gorm:"size:20;not null" json:"status"`
	JoinedAt       time.Time      `json:"joinedAt"`
	LastActivityAt time.Time      `json:"lastActivityAt"`
}

// RoomSettings 是房间的可配置开关。
type RoomSettings struct {
	DefaultMic         bool `json:"defaultMic"`
	DefaultCamera      bool `json:"defaultCamera"`
	ChatEnabled        bool `json:"chatEnabled"`
	ScreenShareEnabled bool `json:"screenShareEnabled"`
	RecordingAllowed   bool `json:"recordingAllowed"`
	Public             bool `json:"public"`
	MaxParticipants    int  `json:"maxParticipants"` // 0 表示不限制
}

// DefaultRoomSettings 返回新房间的默认设置。
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		DefaultMic:         true,
		DefaultCamera:      true,
		ChatEnabled:        true,
		ScreenShareEnabled: true,
	}
}

// RoomSettingsPatch 是设置的部分更新，nil 字段保持不变。
type RoomSettingsPatch struct {
	DefaultMic         *bool `json:"defaultMic"`
	DefaultCamera      *bool `json:"defaultCamera"`
	ChatEnabled        *bool `json:"chatEnabled"`
	ScreenShareEnabled *bool `json:"screenShareEnabled"`
	RecordingAllowed   *bool `json:"recordingAllowed"`
	Public             *bool `json:"public"`
	MaxParticipants    *int  `json:"maxParticipants" binding:"omitempty,min=0"`
}

// Apply 将补丁应用到设置上。
func (p RoomSettingsPatch) Apply(s *RoomSettings) {
	assign := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	assign(&s.DefaultMic, p.DefaultMic)
	assign(&s.DefaultCamera, p.DefaultCamera)
	assign(&s.ChatEnabled, p.ChatEnabled)
	assign(&s.ScreenShareEnabled, p.ScreenShareEnabled)
	assign(&s.RecordingAllowed, p.RecordingAllowed)
	assign(&s.Public, p.Public)
	if p.MaxParticipants != nil {
		s.MaxParticipants = *p.MaxParticipants
	}
}

// CurrentMeeting 是当前会议的状态。Live 是实时连接的参与者，
// Ledger 记录本次会议中加入过的所有人，用于计算时长和人数。
type CurrentMeeting struct {
	StartedAt *time.Time        `json:"startedAt,omitempty"`
	Live      []LiveParticipant `json:"participants"`
	Ledger    []LedgerEntry     `json:"ledger"`
	PeakLive  int               `json:"peakLive"`
}

// LiveParticipant 是当前在会议中的参与者及其媒体状态。
type LiveParticipant struct {
	UserID      uint      `json:"userId"`
	ConnectedAt time.Time `json:"connectedAt"`
	Mic         bool      `json:"mic"`
	Camera      bool      `json:"camera"`
	ScreenShare bool      `json:"screenShare"`
}

// LedgerEntry 是本次会议的出席记录。
type LedgerEntry struct {
	UserID         uint       `json:"userId"`
	ConnectedAt    time.Time  `json:"connectedAt"`
	DisconnectedAt *time.Time `json:"disconnectedAt,omitempty"`
}

// RoomStats 是房间的累计统计。
type RoomStats struct {
	TotalMeetings        int        `json:"totalMeetings"`
	TotalDurationMinutes int        `json:"totalDurationMinutes"`
	LastMeetingAt        *time.Time `json:"lastMeetingAt,omitempty"`
	MaxParticipants      int        `json:"maxParticipants"`
}

// MeetingRecord 是一次已结束会议的历史记录。
type MeetingRecord struct {
	StartedAt       time.Time           `json:"startedAt"`
	EndedAt         time.Time           `json:"endedAt"`
	DurationMinutes int                 `json:"durationMinutes"`
	PeakConcurrent  int                 `json:"peakConcurrent"`
	Participants    []ParticipantRecord `json:"participants"`
	Recording       datatypes.JSONMap   `json:"recording,omitempty"`
}

// ParticipantRecord 是单个参与者在一次会议中的出席时长。
type ParticipantRecord struct {
	UserID          uint       `json:"userId"`
	JoinedAt        time.Time  `json:"joinedAt"`
	LeftAt          *time.Time `json:"leftAt,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
}

func (r *Room) OwnerID() uint { return r.CreatorID }

func (r *Room) HasMember(userID uint) bool {
	_, ok := r.Member(userID)
	return ok
}

// Member 返回指定用户的名单项。
func (r *Room) Member(userID uint) (*RoomMember, bool) {
	for i := range r.Members {
		if r.Members[i].UserID == userID {
			return &r.Members[i], true
		}
	}
	return nil, false
}

// CanManage 报告用户是否可以结束会议或修改设置：创建者或 host 角色成员。
func (r *Room) CanManage(userID uint) bool {
	if userID == 0 {
		return false
	}
	if r.CreatorID == userID {
		return true
	}
	m, ok := r.Member(userID)
	return ok && m.Role == RoleHost
}

// IsLive 报告用户是否在当前会议的实时列表中。
func (r *Room) IsLive(userID uint) bool {
	return lo.ContainsBy(r.CurrentMeeting.Live, func(p LiveParticipant) bool { return p.UserID == userID })
}

// HistoryNewestFirst 返回按时间倒序排列的历史记录副本。
func (r *Room) HistoryNewestFirst() []MeetingRecord {
	history := make([]MeetingRecord, len(r.History))
	copy(history, r.History)
	return lo.Reverse(history)
}

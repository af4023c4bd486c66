package domain

import (
	"math"
	"time"

	"github.com/samber/lo"
)

// MediaState 是参与者加入会议时的麦克风和摄像头状态。
type MediaState struct {
	Mic    bool
	Camera bool
}

// StartMeeting 将房间从 Idle 转为 Active，发起者成为第一个参与者。
// 会议已在进行时返回 ErrMeetingAlreadyActive，由调用方决定是否改为加入。
func (r *Room) StartMeeting(userID uint, media MediaState, now time.Time) error {
	if r.MeetingActive {
		return ErrMeetingAlreadyActive
	}
	startedAt := now
	r.MeetingActive = true
	r.CurrentMeeting = CurrentMeeting{
		StartedAt: &startedAt,
		Live: []LiveParticipant{{
			UserID:      userID,
			ConnectedAt: now,
			Mic:         media.Mic,
			Camera:      media.Camera,
		}},
		Ledger:   []LedgerEntry{{UserID: userID, ConnectedAt: now}},
		PeakLive: 1,
	}
	r.Stats.TotalMeetings++
	return nil
}

// JoinMeeting 将用户加入正在进行的会议。
// 已在实时列表中时返回 alreadyIn=true 且不做任何修改。
func (r *Room) JoinMeeting(userID uint, media MediaState, now time.Time) (alreadyIn bool, err error) {
	if !r.MeetingActive {
		return false, ErrMeetingNotActive
	}
	if r.IsLive(userID) {
		return true, nil
	}
	if r.Settings.MaxParticipants > 0 && len(r.CurrentMeeting.Live) >= r.Settings.MaxParticipants {
		return false, ErrRoomFull
	}

	r.CurrentMeeting.Live = append(r.CurrentMeeting.Live, LiveParticipant{
		UserID:      userID,
		ConnectedAt: now,
		Mic:         media.Mic,
		Camera:      media.Camera,
	})
	// 每次会议每人只记录一次
	if !lo.ContainsBy(r.CurrentMeeting.Ledger, func(e LedgerEntry) bool { return e.UserID == userID }) {
		r.CurrentMeeting.Ledger = append(r.CurrentMeeting.Ledger, LedgerEntry{UserID: userID, ConnectedAt: now})
	}
	if n := len(r.CurrentMeeting.Live); n > r.CurrentMeeting.PeakLive {
		r.CurrentMeeting.PeakLive = n
	}
	return false, nil
}

// LeaveMeeting 将用户移出实时列表并标记其出席记录的离开时间 (仅第一次生效)。
// 实时列表清空时自动结束会议，并返回生成的历史记录。
func (r *Room) LeaveMeeting(userID uint, now time.Time) (*MeetingRecord, error) {
	if !r.MeetingActive {
		return nil, ErrMeetingNotActive
	}

	for i := range r.CurrentMeeting.Ledger {
		entry := &r.CurrentMeeting.Ledger[i]
		if entry.UserID == userID && entry.DisconnectedAt == nil {
			leftAt := now
			entry.DisconnectedAt = &leftAt
			break
		}
	}
	r.CurrentMeeting.Live = lo.Reject(r.CurrentMeeting.Live, func(p LiveParticipant, _ int) bool {
		return p.UserID == userID
	})

	if len(r.CurrentMeeting.Live) == 0 {
		return r.EndMeeting(now)
	}
	return nil, nil
}

// EndMeeting 结束当前会议：计算时长，追加历史记录，更新统计并重置会议状态。
// 权限检查由调用方负责。
func (r *Room) EndMeeting(now time.Time) (*MeetingRecord, error) {
	if !r.MeetingActive {
		return nil, ErrMeetingNotActive
	}

	startedAt := now
	if r.CurrentMeeting.StartedAt != nil {
		startedAt = *r.CurrentMeeting.StartedAt
	}

	participants := lo.Map(r.CurrentMeeting.Ledger, func(e LedgerEntry, _ int) ParticipantRecord {
		until := now
		if e.DisconnectedAt != nil {
			until = *e.DisconnectedAt
		}
		return ParticipantRecord{
			UserID:          e.UserID,
			JoinedAt:        e.ConnectedAt,
			LeftAt:          e.DisconnectedAt,
			DurationMinutes: billableMinutes(until.Sub(e.ConnectedAt)),
		}
	})

	record := MeetingRecord{
		StartedAt:       startedAt,
		EndedAt:         now,
		DurationMinutes: billableMinutes(now.Sub(startedAt)),
		PeakConcurrent:  r.CurrentMeeting.PeakLive,
		Participants:    participants,
	}
	r.History = append(r.History, record)

	endedAt := now
	r.Stats.TotalDurationMinutes += record.DurationMinutes
	r.Stats.LastMeetingAt = &endedAt
	// 峰值人数取本次会议出席记录的总人数，而非同时在线的最大值
	if n := len(r.CurrentMeeting.Ledger); n > r.Stats.MaxParticipants {
		r.Stats.MaxParticipants = n
	}

	r.MeetingActive = false
	r.CurrentMeeting = CurrentMeeting{}
	return &record, nil
}

// billableMinutes 四舍五入到分钟，最少 1 分钟。
func billableMinutes(d time.Duration) int {
	m := int(math.Round(d.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}

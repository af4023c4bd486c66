package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"team-meetings/internal/domain"
	"team-meetings/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// MeetingHandler 处理 /meetings 下的房间、会议生命周期和聊天接口
type MeetingHandler struct {
	rooms    *service.RoomService
	meetings *service.MeetingService
	messages *service.MessageService
}

// NewMeetingHandler 创建 MeetingHandler 实例
func NewMeetingHandler(rooms *service.RoomService, meetings *service.MeetingService, messages *service.MessageService) *MeetingHandler {
	if rooms == nil || meetings == nil || messages == nil {
		panic("services cannot be nil for MeetingHandler")
	}
	return &MeetingHandler{rooms: rooms, meetings: meetings, messages: messages}
}

// JoinByCodeRequest 是通过访问码加入房间的请求体
type JoinByCodeRequest struct {
	Code string `json:"codeAcces" binding:"required"`
}

// MediaRequest 是开始或加入会议时的媒体状态，缺省为关闭
type MediaRequest struct {
	Mic    *bool `json:"micro"`
	Camera *bool `json:"camera"`
}

func (r MediaRequest) state() domain.MediaState {
	return domain.MediaState{Mic: lo.FromPtr(r.Mic), Camera: lo.FromPtr(r.Camera)}
}

// PostMessageRequest 是持久化聊天的请求体
type PostMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// MessageView 是聊天消息的响应格式
type MessageView struct {
	ID        string             `json:"id"`
	Sender    domain.UserProfile `json:"sender"`
	Content   string             `json:"content"`
	Type      string             `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
}

func toMessageView(m domain.MeetingMessage) MessageView {
	sender := m.Sender.Profile()
	if sender.ID == 0 {
		sender.ID = m.SenderID
	}
	return MessageView{ID: m.ID, Sender: sender, Content: m.Content, Type: m.Type, Timestamp: m.CreatedAt}
}

// ListMeetings 处理 GET /meetings
func (h *MeetingHandler) ListMeetings(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	rooms, err := h.rooms.ListRooms(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	SuccessResponse(c, http.StatusOK, gin.H{"meetings": rooms})
}

// GetMeeting 处理 GET /meetings/:roomId，项目成员首次访问时自动加入名单
func (h *MeetingHandler) GetMeeting(c *gin.Context) {
	userID, roomID, ok := h.userAndRoom(c)
	if !ok {
		return
	}
	room, err := h.rooms.GetRoom(c.Request.Context(), roomID, userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// JoinByCode 处理 POST /meetings/join
func (h *MeetingHandler) JoinByCode(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req JoinByCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Access code is required")
		return
	}
	room, err := h.rooms.JoinByAccessCode(c.Request.Context(), userID, req.Code)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Joined room successfully", "room": room})
}

// StartMeeting 处理 POST /meetings/:roomId/start，会议进行中时等同于加入
func (h *MeetingHandler) StartMeeting(c *gin.Context) {
	userID, roomID, ok := h.userAndRoom(c)
	if !ok {
		return
	}
	media, ok := bindMedia(c)
	if !ok {
		return
	}
	result, err := h.meetings.Start(c.Request.Context(), roomID, userID, media)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	message := "Meeting started"
	if !result.Started {
		message = "Joined the ongoing meeting"
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": message, "started": result.Started, "room": result.Room})
}

// JoinMeeting 处理 POST /meetings/:roomId/join-meeting
func (h *MeetingHandler) JoinMeeting(c *gin.Context) {
	userID, roomID, ok := h.userAndRoom(c)
	if !ok {
		return
	}
	media, ok := bindMedia(c)
	if !ok {
		return
	}
	result, err := h.meetings.Join(c.Request.Context(), roomID, userID, media)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{
		"message":          "Joined the meeting",
		"alreadyInMeeting": result.AlreadyInMeeting,
		"room":             result.Room,
	})
}

// LeaveMeeting 处理 POST /meetings/:roomId/leave-meeting，最后一人离开时会议自动结束
func (h *MeetingHandler) LeaveMeeting(c *gin.Context) {
	userID, roomID, ok := h.userAndRoom(c)
	if !ok {
		return
	}
	result, err := h.meetings.Leave(c.Request.Context(), roomID, userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{
		"message":      "Left the meeting",
		"meetingEnded": result.Ended != nil,
		"record":       result.Ended,
		"room":         result.Room,
	})
}

// EndMeeting 处理 POST /meetings/:roomId/end
func (h *MeetingHandler) EndMeeting(c *gin.Context) {
	userID, roomID, ok := h.userAndRoom(c)
	if !ok {
		return
	}
	result, err := h.meetings.End(c.Request.Context(), roomID, userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Info("Handler.EndMeeting: meeting ended")
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Meeting ended", "record": result.Ended})
}

// PostMessage 处理 POST /meetings/:roomId/messages
func (h *MeetingHandler) PostMessage(c *gin.Context) {
	userID, roomID, ok := h.userAndRoom(c)
	if !ok {
		return
	}
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Message content is required")
		return
	}
	msg, err := h.messages.Post(c.Request.Context(), roomID, userID, req.Content)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, toMessageView(*msg))
}

// ListMessages 处理 GET /meetings/:roomId/messages?limit=
func (h *MeetingHandler) ListMessages(c *gin.Context) {
	userID, roomID, ok := h.userAndRoom(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	msgs, err := h.messages.List(c.Request.Context(), roomID, userID, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"messages": lo.Map(msgs, func(m domain.MeetingMessage, _ int) MessageView {
		return toMessageView(m)
	})})
}

// UpdateSettings 处理 PUT /meetings/:roomId/settings
func (h *MeetingHandler) UpdateSettings(c *gin.Context) {
	userID, roomID, ok := h.userAndRoom(c)
	if !ok {
		return
	}
	var patch domain.RoomSettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid settings: "+err.Error())
		return
	}
	settings, err := h.rooms.UpdateSettings(c.Request.Context(), roomID, userID, patch)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Settings updated", "settings": settings})
}

// History 处理 GET /meetings/:roomId/history
func (h *MeetingHandler) History(c *gin.Context) {
	userID, roomID, ok := h.userAndRoom(c)
	if !ok {
		return
	}
	history, err := h.rooms.GetHistory(c.Request.Context(), roomID, userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if history.History == nil {
		history.History = []domain.MeetingRecord{}
	}
	SuccessResponse(c, http.StatusOK, history)
}

// RemoveMember 处理 DELETE /meetings/:roomId/members/:userId
func (h *MeetingHandler) RemoveMember(c *gin.Context) {
	actorID, roomID, ok := h.userAndRoom(c)
	if !ok {
		return
	}
	memberID, ok := idParam(c, "userId")
	if !ok {
		return
	}
	if err := h.rooms.RemoveMemberAs(c.Request.Context(), actorID, roomID, memberID); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MeetingHandler) userAndRoom(c *gin.Context) (uint, uint, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		return 0, 0, false
	}
	roomID, ok := idParam(c, "roomId")
	if !ok {
		return 0, 0, false
	}
	return userID, roomID, true
}

// bindMedia 读取可选的媒体状态请求体，空请求体视为全部关闭
func bindMedia(c *gin.Context) (domain.MediaState, bool) {
	var req MediaRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			ErrorResponse(c, http.StatusBadRequest, "Invalid media state: "+err.Error())
			return domain.MediaState{}, false
		}
	}
	return req.state(), true
}

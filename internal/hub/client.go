package hub

import (
	"sync"
	"time"

	"team-meetings/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个已认证的 WebSocket 连接，连接期间身份不变。
// 同一用户可以有多个 Client (多个标签页)，各自独立加入和离开房间。
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string
	user domain.UserProfile
	send chan []byte

	// rooms 是连接已加入的房间，由 hub.mu 保护
	rooms     map[string]struct{}
	closeOnce sync.Once
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, user *domain.User) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		id:    uuid.NewString(),
		user:  user.Profile(),
		send:  make(chan []byte, sendBufferSize),
		rooms: make(map[string]struct{}),
	}
}

// Run 登记到 Hub 并启动读写 goroutine
func (c *Client) Run() {
	c.hub.Register(c)
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump 读取客户端消息并交给 Hub 按顺序处理。
// 连接断开时从 Hub 注销，对所有已加入的房间广播 user-left。
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		c.logger().Info("readPump exited")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger().WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.logger().Debug("WebSocket connection closed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.logger().Debugf("Ignoring non-text message type: %d", messageType)
			continue
		}
		c.hub.HandleFrame(c, message)
	}
}

// WritePump 将 send 通道中的消息写入连接，并定期发送 Ping。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger().Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger().WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger().WithError(err).Debug("Failed to send ping message")
				return
			}
		}
	}
}

func (c *Client) ID() string                  { return c.id }
func (c *Client) UserID() uint                { return c.user.ID }
func (c *Client) Profile() domain.UserProfile { return c.user }

// closeSend 关闭发送通道，调用方必须持有 hub.mu 写锁
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *Client) logger() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.user.ID})
}

package server

import (
	"go.uber.org/zap"

	"github.com/Mateyclick/tactics-live/internal/obslog"
	"github.com/Mateyclick/tactics-live/pkg/protocol"
)

// conn is one connected websocket client. Frames are queued on send and
// written by a dedicated goroutine; a full queue drops the frame rather
// than blocking the session lock.
type conn struct {
	id       string
	userID   string
	nickname string
	send     chan []byte
}

func newConn(id, userID string) *conn {
	return &conn{id: id, userID: userID, send: make(chan []byte, 64)}
}

func (c *conn) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		obslog.L().Warn("send queue full, dropping frame", zap.String("conn", c.id))
	}
}

func (c *conn) enqueueMessage(msgType string, payload any) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		obslog.L().Error("encode outbound message", zap.String("type", msgType), zap.Error(err))
		return
	}
	c.enqueue(data)
}

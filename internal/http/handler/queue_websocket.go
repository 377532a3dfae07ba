package handler

import (
	"context"
	"encoding/json"
	"time"

	"antrian-klinik/internal/http/middleware"
	"antrian-klinik/internal/models"
	"antrian-klinik/internal/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const (
	pingInterval  = 20 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 5 * time.Second
	maxFrameSize  = 4096
)

// RequireUpgrade rejects plain HTTP on the websocket route.
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *QueueHandler) QueueWebSocket() fiber.Handler {
	return websocket.New(h.serveConn)
}

/*
|--------------------------------------------------------------------------
| Connection
|--------------------------------------------------------------------------
| Satu goroutine baca (handshake, ack, ping dari client) dan satu goroutine
| tulis. Hanya goroutine tulis yang menyentuh WriteMessage.
*/

func (h *QueueHandler) serveConn(c *websocket.Conn) {
	actor, _ := c.Locals(middleware.LocalActor).(models.Actor)
	sub := realtime.NewSubscriber(actor, h.subscriberBuffer)
	log := h.log.With(zap.String("subscriber", sub.ID), zap.String("actor", actor.ID))

	log.Info("websocket connected", zap.String("remote", c.RemoteAddr().String()))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(c, sub, log)
	}()

	defer func() {
		h.hub.Remove(sub)
		<-writerDone
		_ = c.Close()
		log.Info("websocket disconnected")
	}()

	c.SetReadLimit(maxFrameSize)
	_ = c.SetReadDeadline(time.Now().Add(readDeadline))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure,
			) {
				log.Warn("unexpected close", zap.Error(err))
			}
			return
		}
		_ = c.SetReadDeadline(time.Now().Add(readDeadline))

		var msg models.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sub.Reply(realtime.EncodeError("pesan tidak valid"))
			continue
		}
		h.handleClientMessage(sub, msg, log)
	}
}

func (h *QueueHandler) handleClientMessage(sub *realtime.Subscriber, msg models.ClientMessage, log *zap.Logger) {
	switch msg.Type {
	case models.MessageSubscribe:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.hub.Attach(ctx, h.engine, sub, msg.Key, msg.LastKnownVersion); err != nil {
			log.Debug("subscribe ditolak", zap.String("key", msg.Key.String()), zap.Error(err))
			sub.Reply(realtime.EncodeError(err.Error()))
		}
	case models.MessageUnsubscribe:
		h.hub.Detach(sub, msg.Key)
	case models.MessageAck:
		sub.Ack(msg.Key, msg.Version)
	case models.MessagePing:
		sub.Reply(realtime.EncodePong())
	default:
		sub.Reply(realtime.EncodeError("tipe pesan tidak dikenal: " + msg.Type))
	}
}

func (h *QueueHandler) writeLoop(c *websocket.Conn, sub *realtime.Subscriber, log *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-sub.Send():
			_ = c.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Warn("write error", zap.Error(err))
				// membuka blokir ReadMessage di goroutine baca
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn("ping error", zap.Error(err))
				_ = c.Close()
				return
			}
		case <-sub.Done():
			return
		}
	}
}

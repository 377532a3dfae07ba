package client

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"antrian-klinik/internal/models"

	"github.com/gorilla/websocket"
)

const (
	pushWriteWait = 5 * time.Second
	// server pings every 20s
	pushReadWait = 60 * time.Second
)

// PushConn is one live push-channel connection.
type PushConn interface {
	Send(msg models.ClientMessage) error
	Receive() (models.ServerMessage, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (PushConn, error)
}

// WSDialer dials the server websocket, passing the JWT as ?token= since
// browsers and most websocket stacks cannot set headers on upgrade.
type WSDialer struct {
	URL   string
	Token string

	dialer *websocket.Dialer
}

func NewWSDialer(rawURL, token string) *WSDialer {
	return &WSDialer{
		URL:   rawURL,
		Token: token,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (d *WSDialer) Dial(ctx context.Context) (PushConn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, err
	}
	if d.Token != "" {
		q := u.Query()
		q.Set("token", d.Token)
		u.RawQuery = q.Encode()
	}

	conn, _, err := d.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	c := &wsConn{conn: conn}
	_ = conn.SetReadDeadline(time.Now().Add(pushReadWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pushReadWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(pushWriteWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	return c, nil
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex // satu penulis
}

func (c *wsConn) Send(msg models.ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Receive() (models.ServerMessage, error) {
	var msg models.ServerMessage
	if err := c.conn.ReadJSON(&msg); err != nil {
		return msg, err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pushReadWait))
	return msg, nil
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(pushWriteWait))
	c.mu.Unlock()
	return c.conn.Close()
}

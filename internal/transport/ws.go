package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 128
)

// WSDialer opens websocket connections to the hub. The session credential is
// sent as a bearer token in the handshake request.
type WSDialer struct {
	URL    string
	Dialer *websocket.Dialer
	Log    *slog.Logger
}

func NewWSDialer(url string, handshakeTimeout time.Duration, log *slog.Logger) *WSDialer {
	return &WSDialer{
		URL: url,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		Log: log.With(slog.String("component", "ws")),
	}
}

func (d *WSDialer) Dial(ctx context.Context, session string, ev Events) {
	go d.run(ctx, session, ev)
}

func (d *WSDialer) run(ctx context.Context, session string, ev Events) {
	const op = "transport.WSDialer.Dial"

	if session == "" {
		ev.Failed(ErrNoSession)
		return
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+session)

	conn, resp, err := d.Dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if handshakeReason(resp) == ReasonAuth {
			err = fmt.Errorf("%s: %w: %s", op, ErrAuthFailed, resp.Status)
		} else {
			err = fmt.Errorf("%s: %w", op, err)
		}
		d.Log.Debug("dial failed", slog.String("op", op), slog.String("url", d.URL))
		ev.Failed(err)
		return
	}

	d.Log.Debug("websocket opened", slog.String("op", op), slog.String("url", d.URL))
	c := newWSConn(conn)
	ev.Opened(c)

	go c.writePump()
	c.readPump(ev)
}

type wsConn struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *wsConn) Send(b []byte) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
			time.Now().Add(writeWait),
		)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) readPump(ev Events) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			_ = c.Close()
			ev.Closed(err)
			return
		}
		ev.Received(data)
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

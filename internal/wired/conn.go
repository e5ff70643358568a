package wired

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ========================= low-level =========================

const (
	pingInterval = 10 * time.Second
	readTimeout  = 30 * time.Second
)

func (c *Client) nextTx() uint32 {
	return atomic.AddUint32(&c.tx, 1)
}

func (c *Client) wsURL() string {
	if c.cfg.URL != "" {
		return c.cfg.URL
	}
	return fmt.Sprintf("ws://%s:%d/", c.cfg.Hostname, c.cfg.Port)
}

func (c *Client) getConn() *websocket.Conn {
	c.cmu.Lock()
	defer c.cmu.Unlock()
	return c.conn
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.cmu.Lock()
	c.conn = conn
	c.cmu.Unlock()
}

// dial с установкой pong-handler'а, дедлайнов и запуском пингов
func (c *Client) dialAndSetup(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.wsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.wsURL(), err)
	}
	conn.SetReadLimit(16 << 20)

	c.touchActivity()
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		c.touchActivity()
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	c.startPing(conn)
	return conn, nil
}

// безопасно закрыть текущее соединение
func (c *Client) closeConn() {
	c.stopPing()
	c.cmu.Lock()
	conn := c.conn
	c.conn = nil
	c.cmu.Unlock()
	if conn == nil {
		return
	}
	c.wmu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
		time.Now().Add(500*time.Millisecond))
	c.wmu.Unlock()
	_ = conn.Close()
}

func (c *Client) touchActivity() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Client) sinceLastActivity() time.Duration {
	n := c.lastActivity.Load()
	if n == 0 {
		return time.Hour
	}
	return time.Since(time.Unix(0, n))
}

func (c *Client) startPing(conn *websocket.Conn) {
	c.stopPing()
	stop := make(chan struct{})
	c.mu.Lock()
	c.pingStop = stop
	c.mu.Unlock()

	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.wmu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
				c.wmu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (c *Client) stopPing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
}

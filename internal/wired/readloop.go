package wired

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	msgOkay             = "wired.okay"
	msgError            = "wired.error"
	msgLogin            = "wired.login"
	msgSendPing         = "wired.send_ping"
	msgPing             = "wired.ping"
	msgUserList         = "wired.chat.user_list"
	msgUserListDone     = "wired.chat.user_list.done"
	msgUserJoin         = "wired.chat.user_join"
	msgUserLeave        = "wired.chat.user_leave"
	msgUserStatus       = "wired.chat.user_status"
	msgUserKick         = "wired.chat.user_kick"
	msgDirectoryChanged = "wired.file.directory_changed"
	msgFileList         = "wired.file.file_list"
	msgFileListDone     = "wired.file.file_list.done"

	fieldDisconnectedID = "wired.user.disconnected_id"
	maxBackoff          = 30 * time.Second
)

var errConnectionLost = errors.New("wired: connection lost")

func (c *Client) readLoop(ctx context.Context) {
	done := make(chan struct{})
	defer close(done)
	defer func() {
		c.closed.Store(true)
		c.closeConn()
		c.failPendingCallbacks(errConnectionLost)
		if c.OnDisconnected != nil {
			c.OnDisconnected()
		}
	}()

	// закрыть по отмене контекста
	go func() {
		select {
		case <-ctx.Done():
			c.Disconnect()
		case <-done:
		}
	}()

	backoff := time.Second

	for {
		if conn := c.getConn(); conn != nil {
			_, data, err := conn.ReadMessage()
			if err == nil {
				c.touchActivity()
				_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

				msg, uerr := Unmarshal(data)
				if uerr != nil {
					c.reportError(uerr)
					continue
				}
				c.handle(msg)
				backoff = time.Second
				continue
			}
			if c.closed.Load() {
				return
			}
			c.log.Debug("read failed", zap.Duration("idle", c.sinceLastActivity()), zap.Error(err))
			c.reportError(err)
		}

		// закрываем и фейлим ожидающие
		c.closeConn()
		c.failPendingCallbacks(errConnectionLost)
		c.roster.Reset()

		if !c.cfg.AutoReconnect || !c.reconnect(ctx, &backoff) {
			return
		}
	}
}

// reconnect с backoff; false: клиент закрыт или ctx отменён.
func (c *Client) reconnect(ctx context.Context, backoff *time.Duration) bool {
	for !c.closed.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(*backoff):
		}
		if c.closed.Load() {
			return false
		}
		if c.OnConnecting != nil {
			c.OnConnecting()
		}
		conn, err := c.dialAndSetup(ctx)
		if err == nil {
			c.setConn(conn)
			if c.closed.Load() {
				return false
			}
			err = c.handshake(ctx, false)
		}
		if err != nil {
			c.log.Warn("reconnect failed", zap.Duration("wait", *backoff), zap.Error(err))
			c.reportError(err)
			c.closeConn()
			if *backoff < maxBackoff {
				*backoff *= 2
				if *backoff > maxBackoff {
					*backoff = maxBackoff
				}
			}
			continue
		}
		c.log.Info("reconnected", zap.String("url", c.wsURL()))
		if c.OnConnected != nil {
			c.OnConnected()
		}
		*backoff = time.Second
		return true
	}
	return false
}

// handle разбирает одно входящее сообщение. Всё вызывается из readLoop,
// поэтому колбэки не должны ждать ответов сервера.
func (c *Client) handle(msg *Message) {
	if tx := msg.Transaction(); tx != 0 {
		c.mu.Lock()
		cb, ok := c.cbs[tx]
		c.mu.Unlock()
		if ok {
			if cb(msg) {
				c.dropCallback(tx)
			}
			return
		}
	}

	switch msg.Name {
	case msgSendPing:
		if err := c.Send(NewMessage(msgPing).Set(FieldTransaction, msg.Transaction())); err != nil {
			c.reportError(err)
		}
		return

	case msgUserList, msgUserJoin, msgUserStatus:
		c.roster.Update(msg)

	case msgUserKick:
		if msg.Uint32(fieldDisconnectedID) == c.self.Load() {
			c.log.Warn("kicked from chat", zap.Bool("rejoin", c.cfg.ReconnectOnKick))
			if c.cfg.ReconnectOnKick {
				if err := c.Send(joinChatMessage()); err != nil {
					c.reportError(err)
				}
			}
		}

	case msgDirectoryChanged:
		if c.OnDirectoryChanged != nil {
			c.OnDirectoryChanged(msg.String(FieldFilePath))
		}
	}

	if c.OnMessage != nil {
		c.OnMessage(msg)
	}

	// ник уходящего нужен подписчикам OnMessage
	if msg.Name == msgUserLeave {
		c.roster.Remove(msg.Uint32(FieldUserID))
	}
}

func (c *Client) reportError(err error) {
	if c.OnError != nil && !c.closed.Load() {
		c.OnError(err)
	}
}

// пометить все ожидающие callbacks ошибкой при реконнекте/закрытии
func (c *Client) failPendingCallbacks(err error) {
	c.mu.Lock()
	cbs := c.cbs
	c.cbs = make(map[uint32]func(*Message) bool)
	c.mu.Unlock()

	for tx, cb := range cbs {
		if cb == nil {
			continue
		}
		cb(NewMessage(msgError).
			Set(FieldTransaction, tx).
			Set(FieldErrorString, err.Error()))
	}
}

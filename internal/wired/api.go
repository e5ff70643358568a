package wired

import (
	"context"
	"fmt"
	"time"
)

// ========================= high-level API =========================

const (
	publicChatID = 1
	listTimeout  = 30 * time.Second
	loginTimeout = 10 * time.Second

	ClientName = "wirebot"
)

func joinChatMessage() *Message {
	return NewMessage("wired.chat.join_chat").Set(FieldChatID, publicChatID)
}

// handshake: приветствие после каждого (пере)подключения. С wait=true ответ
// на логин ждётся синхронно, и отказ сервера возвращается ошибкой. Из readLoop
// ждать нельзя, там wait=false и отказ уходит в OnError.
func (c *Client) handshake(ctx context.Context, wait bool) error {
	info := NewMessage("wired.client_info").
		Set("wired.info.application.name", ClientName).
		Set("wired.info.os.name", "go")
	if err := c.Send(info); err != nil {
		return err
	}

	login := NewMessage("wired.send_login").
		Set(FieldUserLogin, c.cfg.Login).
		Set("wired.user.password", c.cfg.Password)
	if wait {
		wctx, cancel := context.WithTimeout(ctx, loginTimeout)
		defer cancel()
		r, err := c.RequestWait(wctx, login)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		c.self.Store(r.Uint32(FieldUserID))
	} else {
		err := c.Request(login, func(m *Message) bool {
			switch m.Name {
			case msgLogin:
				c.self.Store(m.Uint32(FieldUserID))
			case msgError:
				c.reportError(&ServerError{Request: "wired.send_login", Message: m.String(FieldErrorString)})
			}
			return true
		})
		if err != nil {
			return err
		}
	}

	msgs := []*Message{
		NewMessage("wired.user.set_nick").Set(FieldUserNick, c.Self().Nick),
		NewMessage("wired.user.set_status").Set(FieldUserStatus, c.cfg.Status),
	}
	if icon, _ := c.icon.Load().([]byte); len(icon) > 0 {
		msgs = append(msgs, setIconMessage(icon))
	}
	msgs = append(msgs, joinChatMessage())
	for _, m := range msgs {
		if err := c.Send(m); err != nil {
			return err
		}
	}
	return nil
}

// Self: id, выданный сервером при логине, и текущий ник.
func (c *Client) Self() User {
	nick, _ := c.nick.Load().(string)
	return User{ID: c.self.Load(), Nick: nick, Login: c.cfg.Login}
}

func (c *Client) Say(text string) error {
	return c.Send(NewMessage("wired.chat.send_say").
		Set(FieldChatID, publicChatID).
		Set("wired.chat.say", text))
}

func (c *Client) Me(text string) error {
	return c.Send(NewMessage("wired.chat.send_me").
		Set(FieldChatID, publicChatID).
		Set("wired.chat.me", text))
}

func (c *Client) PrivateMessage(userID uint32, text string) error {
	return c.Send(NewMessage("wired.message.send_message").
		Set(FieldUserID, userID).
		Set("wired.message.message", text))
}

func (c *Client) Broadcast(text string) error {
	return c.Send(NewMessage("wired.message.send_broadcast").
		Set("wired.message.broadcast", text))
}

func (c *Client) AddThread(board, subject, text string) error {
	return c.Send(NewMessage("wired.board.add_thread").
		Set("wired.board.board", board).
		Set("wired.board.subject", subject).
		Set("wired.board.text", text))
}

func (c *Client) SetNick(nick string) error {
	if err := c.Send(NewMessage("wired.user.set_nick").Set(FieldUserNick, nick)); err != nil {
		return err
	}
	c.nick.Store(nick)
	return nil
}

func setIconMessage(icon []byte) *Message {
	return NewMessage("wired.user.set_icon").Set("wired.user.icon", icon)
}

// SetIcon меняет аватар; новый же уходит и при следующих переподключениях.
func (c *Client) SetIcon(icon []byte) error {
	if err := c.Send(setIconMessage(icon)); err != nil {
		return err
	}
	c.icon.Store(icon)
	return nil
}

func (c *Client) SetStatus(status string) error {
	return c.Send(NewMessage("wired.user.set_status").Set(FieldUserStatus, status))
}

func (c *Client) SetIdle(idle bool) error {
	return c.Send(NewMessage("wired.user.set_idle").Set(FieldUserIdle, idle))
}

func (c *Client) SubscribeDirectory(path string) error {
	return c.Send(NewMessage("wired.file.subscribe_directory").Set(FieldFilePath, path))
}

func (c *Client) UnsubscribeDirectory(path string) error {
	return c.Send(NewMessage("wired.file.unsubscribe_directory").Set(FieldFilePath, path))
}

// ListDirectory собирает wired.file.file_list до wired.file.file_list.done.
// Нельзя вызывать из колбэков клиента: ответ читает тот же readLoop.
func (c *Client) ListDirectory(ctx context.Context, path string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	var files []string
	done := make(chan error, 1)
	tx, err := c.request(NewMessage("wired.file.list_directory").Set(FieldFilePath, path), func(m *Message) bool {
		switch m.Name {
		case msgFileList:
			if p := m.String(FieldFilePath); p != "" && p != path {
				files = append(files, p)
			}
			return false
		case msgFileListDone:
			done <- nil
		case msgError:
			done <- &ServerError{Request: "wired.file.list_directory", Message: m.String(FieldErrorString)}
		default:
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", path, err)
		}
		return files, nil
	case <-ctx.Done():
		c.dropCallback(tx)
		return nil, fmt.Errorf("list %s: %w", path, ctx.Err())
	}
}

// List: то же, в форме, которую ждёт движок вотчеров.
func (c *Client) List(ctx context.Context, path string) ([]string, error) {
	return c.ListDirectory(ctx, path)
}

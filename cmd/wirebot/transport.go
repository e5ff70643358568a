package main

import (
	"errors"
	"os"

	"github.com/EgorLis/wirebot/internal/bot"
	"github.com/EgorLis/wirebot/internal/fslist"
	"github.com/EgorLis/wirebot/internal/wired"
)

// transport: wired.Client в роли bot.Transport.
type transport struct {
	*wired.Client
	iconPath string
}

func (t transport) Self() bot.User {
	return botUser(t.Client.Self())
}

// ReloadIcon заново читает файл аватара при reload словаря. Нет файла, нет и аватара.
func (t transport) ReloadIcon() error {
	if t.iconPath == "" {
		return nil
	}
	icon, err := os.ReadFile(t.iconPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return t.SetIcon(icon)
}

// localTransport подписывает вотчеры на fsnotify вместо сервера.
type localTransport struct {
	transport
	n *fslist.Notifier
}

func (t localTransport) SubscribeDirectory(path string) error   { return t.n.Subscribe(path) }
func (t localTransport) UnsubscribeDirectory(path string) error { return t.n.Unsubscribe(path) }

func botUser(u wired.User) bot.User {
	return bot.User{ID: u.ID, Nick: u.Nick, Login: u.Login}
}

// toEvent превращает входящее сообщение в событие движка. Текст реплик лежит
// в поле с тем же именем, что и сообщение.
func toEvent(m *wired.Message, roster *wired.Roster) (bot.Event, bool) {
	ev := bot.Event{Name: m.Name}
	switch m.Name {
	case bot.MsgChatSay, bot.MsgChatMe, bot.MsgMessage, bot.MsgBroadcast:
		ev.Text = m.String(m.Name)
		ev.HasText = true
	case bot.MsgUserJoin, bot.MsgUserLeave:
	default:
		return bot.Event{}, false
	}

	id := m.Uint32(wired.FieldUserID)
	if u, ok := roster.User(id); ok {
		ev.User = botUser(u)
	} else {
		ev.User = bot.User{ID: id, Nick: m.String(wired.FieldUserNick), Login: m.String(wired.FieldUserLogin)}
	}
	return ev, true
}

package wired

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeServer: минимальный сервер: отвечает на логин и листинг, пишет всё
// полученное.
type fakeServer struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	received []*Message
	conns    []*websocket.Conn
	accepted int

	files map[string][]string
	// reply перекрывает ответ по умолчанию; nil: ответ по умолчанию
	reply func(conn *websocket.Conn, m *Message) bool
}

func newFakeServer(t *testing.T) *fakeServer {
	s := &fakeServer{t: t, files: map[string][]string{}}
	up := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.accepted++
		s.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			m, err := Unmarshal(data)
			if err != nil {
				return
			}
			s.mu.Lock()
			s.received = append(s.received, m)
			reply := s.reply
			s.mu.Unlock()
			if reply != nil && reply(conn, m) {
				continue
			}
			s.defaultReply(conn, m)
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *fakeServer) write(conn *websocket.Conn, m *Message) {
	data, err := Marshal(m)
	require.NoError(s.t, err)
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *fakeServer) defaultReply(conn *websocket.Conn, m *Message) {
	tx := m.Transaction()
	switch m.Name {
	case "wired.send_login":
		s.write(conn, NewMessage(msgLogin).Set(FieldTransaction, tx).Set(FieldUserID, 42))
	case "wired.file.list_directory":
		path := m.String(FieldFilePath)
		s.mu.Lock()
		files := s.files[path]
		s.mu.Unlock()
		for _, f := range files {
			s.write(conn, NewMessage(msgFileList).Set(FieldTransaction, tx).Set(FieldFilePath, f))
		}
		s.write(conn, NewMessage(msgFileListDone).Set(FieldTransaction, tx).Set(FieldFilePath, path))
	}
}

// push отправляет сообщение последнему подключившемуся клиенту.
func (s *fakeServer) push(m *Message) {
	s.mu.Lock()
	require.NotEmpty(s.t, s.conns)
	conn := s.conns[len(s.conns)-1]
	s.mu.Unlock()
	s.write(conn, m)
}

func (s *fakeServer) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]string, 0, len(s.received))
	for _, m := range s.received {
		res = append(res, m.Name)
	}
	return res
}

func (s *fakeServer) last(name string) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.received) - 1; i >= 0; i-- {
		if s.received[i].Name == name {
			return s.received[i]
		}
	}
	return nil
}

func (s *fakeServer) waitFor(name string) *Message {
	var m *Message
	require.Eventually(s.t, func() bool {
		m = s.last(name)
		return m != nil
	}, 2*time.Second, 5*time.Millisecond, "no %s received", name)
	return m
}

func connect(t *testing.T, s *fakeServer, cfg Config, hooks ...func(*Client)) *Client {
	t.Helper()
	cfg.URL = s.url()
	if cfg.Nick == "" {
		cfg.Nick = "WireBot"
	}
	if cfg.Login == "" {
		cfg.Login = "bot"
	}
	c := New(cfg, nil)
	for _, h := range hooks {
		h(c)
	}
	disconnected := make(chan struct{})
	c.OnDisconnected = func() { close(disconnected) }

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() {
		cancel()
		c.Disconnect()
		select {
		case <-disconnected:
		case <-time.After(2 * time.Second):
			t.Error("client did not stop")
		}
	})
	return c
}

func TestConnectHandshake(t *testing.T) {
	assert := assert.New(t)
	s := newFakeServer(t)
	c := connect(t, s, Config{Login: "admin", Password: "secret", Status: "Jedi in the Matrix"})

	s.waitFor("wired.chat.join_chat")
	assert.Equal([]string{
		"wired.client_info",
		"wired.send_login",
		"wired.user.set_nick",
		"wired.user.set_status",
		"wired.chat.join_chat",
	}, s.names())

	login := s.last("wired.send_login")
	assert.Equal("admin", login.String(FieldUserLogin))
	assert.Equal("secret", login.String("wired.user.password"))
	assert.NotZero(login.Transaction())
	assert.Equal("Jedi in the Matrix", s.last("wired.user.set_status").String(FieldUserStatus))
	assert.Equal(uint32(1), s.last("wired.chat.join_chat").Uint32(FieldChatID))

	// Connect возвращается только после ответа на логин
	assert.Equal(uint32(42), c.Self().ID)
	assert.Equal("WireBot", c.Self().Nick)
	assert.True(c.IsConnected())
}

func TestConnectRefused(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/"}, nil)
	assert.Error(t, c.Connect(context.Background()))
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.Say("hello"), ErrNotConnected)
}

func TestConnectLoginRejected(t *testing.T) {
	s := newFakeServer(t)
	s.reply = func(conn *websocket.Conn, m *Message) bool {
		if m.Name != "wired.send_login" {
			return false
		}
		s.write(conn, NewMessage(msgError).
			Set(FieldTransaction, m.Transaction()).
			Set(FieldErrorString, "wired.banned"))
		return true
	}

	c := New(Config{URL: s.url(), Login: "bot", Nick: "WireBot"}, nil)
	disconnected := make(chan struct{})
	c.OnDisconnected = func() { close(disconnected) }

	err := c.Connect(context.Background())
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "wired.send_login", se.Request)
	assert.Equal(t, "wired.banned", se.Message)
	assert.False(t, c.IsConnected())
	assert.NotContains(t, s.names(), "wired.chat.join_chat")

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Error("client did not stop")
	}
}

func TestOutgoingMessages(t *testing.T) {
	assert := assert.New(t)
	s := newFakeServer(t)
	c := connect(t, s, Config{})

	require.NoError(t, c.Say("hi all"))
	require.NoError(t, c.Me("waves"))
	require.NoError(t, c.PrivateMessage(7, "psst"))
	require.NoError(t, c.Broadcast("maintenance"))
	require.NoError(t, c.AddThread("Movies", "Heat", "[b]Title:[/b] Heat"))
	require.NoError(t, c.SetIdle(true))
	require.NoError(t, c.SetIcon([]byte("png")))
	require.NoError(t, c.SetNick("Zeta"))

	s.waitFor("wired.user.set_nick")
	assert.Eventually(func() bool {
		m := s.last("wired.user.set_nick")
		return m != nil && m.String(FieldUserNick) == "Zeta"
	}, time.Second, 5*time.Millisecond)

	assert.Equal("hi all", s.last("wired.chat.send_say").String("wired.chat.say"))
	assert.Equal("waves", s.last("wired.chat.send_me").String("wired.chat.me"))
	pm := s.last("wired.message.send_message")
	assert.Equal(uint32(7), pm.Uint32(FieldUserID))
	assert.Equal("psst", pm.String("wired.message.message"))
	assert.Equal("maintenance", s.last("wired.message.send_broadcast").String("wired.message.broadcast"))
	th := s.last("wired.board.add_thread")
	assert.Equal("Movies", th.String("wired.board.board"))
	assert.Equal("Heat", th.String("wired.board.subject"))
	assert.True(s.last("wired.user.set_idle").Bool(FieldUserIdle))
	// structpb кодирует байты в base64
	assert.Equal("cG5n", s.last("wired.user.set_icon").String("wired.user.icon"))
	assert.Equal("Zeta", c.Self().Nick)
}

func TestListDirectory(t *testing.T) {
	s := newFakeServer(t)
	s.files["/Uploads"] = []string{"/Uploads/a.mkv", "/Uploads/b.mkv"}
	c := connect(t, s, Config{})

	files, err := c.ListDirectory(context.Background(), "/Uploads")
	require.NoError(t, err)
	assert.Equal(t, []string{"/Uploads/a.mkv", "/Uploads/b.mkv"}, files)

	files, err = c.List(context.Background(), "/Empty")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestListDirectoryServerError(t *testing.T) {
	s := newFakeServer(t)
	s.reply = func(conn *websocket.Conn, m *Message) bool {
		if m.Name != "wired.file.list_directory" {
			return false
		}
		s.write(conn, NewMessage(msgError).
			Set(FieldTransaction, m.Transaction()).
			Set(FieldErrorString, "wired.error.file_not_found"))
		return true
	}
	c := connect(t, s, Config{})

	_, err := c.ListDirectory(context.Background(), "/Missing")
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "wired.error.file_not_found", se.Message)
}

func TestListDirectoryTimeout(t *testing.T) {
	s := newFakeServer(t)
	s.reply = func(conn *websocket.Conn, m *Message) bool {
		return m.Name == "wired.file.list_directory"
	}
	c := connect(t, s, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.ListDirectory(ctx, "/Slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInboundMessagesAndRoster(t *testing.T) {
	assert := assert.New(t)
	s := newFakeServer(t)

	type seen struct {
		name string
		nick string
	}
	var mu sync.Mutex
	var got []seen
	var dirs []string
	c := connect(t, s, Config{}, func(c *Client) {
		c.OnMessage = func(m *Message) {
			u, _ := c.Roster().User(m.Uint32(FieldUserID))
			mu.Lock()
			got = append(got, seen{m.Name, u.Nick})
			mu.Unlock()
		}
		c.OnDirectoryChanged = func(path string) {
			mu.Lock()
			dirs = append(dirs, path)
			mu.Unlock()
		}
	})
	s.waitFor("wired.chat.join_chat")

	s.push(NewMessage(msgUserJoin).Set(FieldUserID, 9).Set(FieldUserNick, "Ann").Set(FieldUserLogin, "ann"))
	s.push(NewMessage("wired.chat.say").Set(FieldUserID, 9).Set("wired.chat.say", "hello"))
	s.push(NewMessage(msgUserLeave).Set(FieldUserID, 9))
	s.push(NewMessage(msgDirectoryChanged).Set(FieldFilePath, "/Uploads"))

	assert.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal([]seen{
		{msgUserJoin, "Ann"},
		{"wired.chat.say", "Ann"},
		{msgUserLeave, "Ann"},
		{msgDirectoryChanged, ""},
	}, got)
	assert.Equal([]string{"/Uploads"}, dirs)

	_, ok := c.Roster().User(9)
	assert.False(ok)
}

func TestPingReply(t *testing.T) {
	s := newFakeServer(t)
	connect(t, s, Config{})
	s.waitFor("wired.chat.join_chat")

	s.push(NewMessage(msgSendPing).Set(FieldTransaction, 777))
	ping := s.waitFor(msgPing)
	assert.Equal(t, uint32(777), ping.Transaction())
}

func TestRejoinAfterKick(t *testing.T) {
	s := newFakeServer(t)
	c := connect(t, s, Config{ReconnectOnKick: true})
	s.waitFor("wired.chat.join_chat")
	require.Eventually(t, func() bool { return c.Self().ID == 42 }, time.Second, 5*time.Millisecond)

	s.push(NewMessage(msgUserKick).Set(fieldDisconnectedID, 42).Set(FieldChatID, 1))
	assert.Eventually(t, func() bool {
		n := 0
		for _, name := range s.names() {
			if name == "wired.chat.join_chat" {
				n++
			}
		}
		return n == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReconnect(t *testing.T) {
	s := newFakeServer(t)
	connected := make(chan struct{}, 2)
	c := connect(t, s, Config{AutoReconnect: true}, func(c *Client) {
		c.OnConnected = func() { connected <- struct{}{} }
	})
	<-connected
	s.waitFor("wired.chat.join_chat")

	s.mu.Lock()
	first := s.conns[0]
	s.mu.Unlock()
	_ = first.Close()

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("client did not reconnect")
	}
	s.mu.Lock()
	assert.Equal(t, 2, s.accepted)
	s.mu.Unlock()
	assert.True(t, c.IsConnected())
}

func TestMessageFields(t *testing.T) {
	assert := assert.New(t)
	m := NewMessage("wired.test").
		Set("n", 5).
		Set("u", uint32(7)).
		Set("b", true).
		Set("s", "text").
		Set("l", []string{"a", "b"})

	data, err := Marshal(m)
	require.NoError(t, err)
	got, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal("wired.test", got.Name)
	assert.Equal(uint32(5), got.Uint32("n"))
	assert.Equal(uint32(7), got.Uint32("u"))
	assert.True(got.Bool("b"))
	assert.Equal("text", got.String("s"))
	assert.Equal([]string{"a", "b"}, got.Strings("l"))
	assert.False(got.Has("missing"))
	assert.Empty(got.String("n"))

	_, err = Unmarshal([]byte{0xff, 0x01})
	assert.Error(err)
}

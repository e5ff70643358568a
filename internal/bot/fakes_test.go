package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sent struct {
	Kind    string
	To      uint32
	Board   string
	Subject string
	Text    string
}

type fakeTransport struct {
	mu        sync.Mutex
	self      User
	sent      []sent
	nick      string
	status    string
	idle      bool
	calls     []string
	connected bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{self: User{ID: 1, Nick: "WireBot", Login: "wirebot"}, connected: true}
}

func (f *fakeTransport) record(s sent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, s)
	f.calls = append(f.calls, s.Kind)
	return nil
}

func (f *fakeTransport) Self() User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.self
}

func (f *fakeTransport) Say(text string) error { return f.record(sent{Kind: "say", Text: text}) }
func (f *fakeTransport) Me(text string) error  { return f.record(sent{Kind: "me", Text: text}) }
func (f *fakeTransport) PrivateMessage(id uint32, text string) error {
	return f.record(sent{Kind: "msg", To: id, Text: text})
}
func (f *fakeTransport) Broadcast(text string) error { return f.record(sent{Kind: "broadcast", Text: text}) }
func (f *fakeTransport) AddThread(board, subject, text string) error {
	return f.record(sent{Kind: "thread", Board: board, Subject: subject, Text: text})
}

func (f *fakeTransport) SetNick(nick string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nick = nick
	f.self.Nick = nick
	f.calls = append(f.calls, "nick:"+nick)
	return nil
}

func (f *fakeTransport) SetStatus(status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.calls = append(f.calls, "status:"+status)
	return nil
}

func (f *fakeTransport) SetIdle(idle bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idle = idle
	f.calls = append(f.calls, "idle")
	return nil
}

func (f *fakeTransport) SubscribeDirectory(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "subscribe:"+path)
	return nil
}

func (f *fakeTransport) UnsubscribeDirectory(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "unsubscribe:"+path)
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeClock struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	return nil
}

// seqRand отдаёт заранее заданные индексы по кругу.
type seqRand struct {
	mu  sync.Mutex
	seq []int
	i   int
}

func (r *seqRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.seq[r.i%len(r.seq)] % n
	r.i++
	return v
}

type fakeLister struct {
	mu    sync.Mutex
	files map[string][]string
	err   error
}

func (l *fakeLister) set(path string, files ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.files == nil {
		l.files = map[string][]string{}
	}
	l.files[path] = files
}

func (l *fakeLister) List(ctx context.Context, path string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return append([]string(nil), l.files[path]...), nil
}

type fakeDescriber struct {
	text  string
	err   error
	calls []string
}

func (d *fakeDescriber) Describe(ctx context.Context, filePath string) (string, string, error) {
	d.calls = append(d.calls, filePath)
	if d.err != nil {
		return "query", "", d.err
	}
	return "query", d.text, nil
}

var errLookup = errors.New("lookup failed")

func writeDict(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wirebot.xml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	return path
}

type fixture struct {
	bot    *Bot
	tr     *fakeTransport
	clock  *fakeClock
	lister *fakeLister
}

func newFixture(t *testing.T, doc string, opts ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{tr: newFakeTransport(), clock: &fakeClock{}, lister: &fakeLister{}}
	o := Options{Transport: f.tr, Clock: f.clock, Lister: f.lister, Rand: &seqRand{seq: []int{0}}}
	for _, fn := range opts {
		fn(&o)
	}
	b, err := New(writeDict(t, doc), o)
	require.NoError(t, err)
	f.bot = b
	return f
}

func say(nick, text string) Event {
	return Event{Name: MsgChatSay, User: User{ID: 7, Nick: nick, Login: nick}, Text: text, HasText: true}
}

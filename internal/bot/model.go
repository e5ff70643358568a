package bot

import (
	"path"
	"strings"
	"sync"
	"time"
)

// имена сообщений протокола, с которыми работает движок
const (
	MsgChatSay          = "wired.chat.say"
	MsgChatMe           = "wired.chat.me"
	MsgMessage          = "wired.message.message"
	MsgBroadcast        = "wired.message.broadcast"
	MsgUserJoin         = "wired.chat.user_join"
	MsgUserLeave        = "wired.chat.user_leave"
	MsgBoardAddThread   = "wired.board.add_thread"
	messageNamePrefix   = "wired."
	permissionAny       = "any"
	transferTmpFileExt  = ".WiredTransfer"
	defaultCommandName  = "help"
	defaultPermissions  = permissionAny
	defaultActivatedVal = true
)

// NormalizeMessageName приводит "chat.say" и "wired.chat.say" к одному виду.
func NormalizeMessageName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, messageNamePrefix) {
		return name
	}
	return messageNamePrefix + name
}

type Comparison int

const (
	Equals Comparison = iota
	Contains
	StartsWith
	EndsWith
	// NotEquals: значение атрибута не распознано; матчер пропускает всё.
	NotEquals
)

func parseComparison(s string) Comparison {
	switch s {
	case "equals":
		return Equals
	case "contains":
		return Contains
	case "starts":
		return StartsWith
	case "ends":
		return EndsWith
	default:
		return NotEquals
	}
}

func (c Comparison) String() string {
	switch c {
	case Equals:
		return "equals"
	case Contains:
		return "contains"
	case StartsWith:
		return "starts"
	case EndsWith:
		return "ends"
	default:
		return "unknown"
	}
}

type TimeRange int

const (
	Every TimeRange = iota
	Morning
	Afternoon
	Evening
	Night
)

func parseTimeRange(s string) TimeRange {
	switch s {
	case "morning":
		return Morning
	case "afternoon":
		return Afternoon
	case "evening":
		return Evening
	case "night":
		return Night
	default:
		return Every
	}
}

func (tr TimeRange) String() string {
	return [...]string{"every", "morning", "afternoon", "evening", "night"}[tr]
}

// Contains сообщает, попадает ли момент t в диапазон. Движок сам диапазоны
// не применяет: это крючок для вызывающей стороны.
func (tr TimeRange) Contains(t time.Time) bool {
	h := t.Hour()
	switch tr {
	case Morning:
		return h >= 6 && h < 12
	case Afternoon:
		return h >= 12 && h < 18
	case Evening:
		return h >= 18 && h < 22
	case Night:
		return h >= 22 || h < 6
	default:
		return true
	}
}

// Kind: вид исходящего действия.
type Kind int

const (
	KindOther Kind = iota
	KindSay
	KindEmote
	KindPrivateMessage
	KindBroadcast
	KindThread
)

func KindOf(messageName string) Kind {
	switch NormalizeMessageName(messageName) {
	case MsgChatSay:
		return KindSay
	case MsgChatMe:
		return KindEmote
	case MsgMessage:
		return KindPrivateMessage
	case MsgBroadcast:
		return KindBroadcast
	case MsgBoardAddThread:
		return KindThread
	default:
		return KindOther
	}
}

func (k Kind) String() string {
	return [...]string{"other", "say", "emote", "message", "broadcast", "thread"}[k]
}

type User struct {
	ID    uint32
	Nick  string
	Login string
}

// Event: одно входящее событие транспорта. HasText=false для join/leave.
type Event struct {
	Name    string
	User    User
	Text    string
	HasText bool
}

type Input struct {
	MessageName   string
	Pattern       string
	Comparison    Comparison
	CaseSensitive bool
}

type Output struct {
	MessageName string
	Kind        Kind
	Template    string
	Board       string
	Time        TimeRange
	Delay       int
	Repeat      int

	// InputText выставляется на копии при выборе ответа правила
	InputText    string
	hasInputText bool
}

// WithInputText возвращает копию с проставленным текстом сработавшего input.
func (o Output) WithInputText(text string) Output {
	o.InputText = text
	o.hasInputText = true
	return o
}

// Retarget возвращает копию, отправляемую тем же видом, что и входящее сообщение.
func (o Output) Retarget(messageName string) Output {
	o.MessageName = NormalizeMessageName(messageName)
	o.Kind = KindOf(o.MessageName)
	return o
}

func (o Output) repeatCount() int {
	if o.Repeat < 1 {
		return 1
	}
	return o.Repeat
}

type Rule struct {
	Activated   bool
	Permissions string
	Inputs      []Input
	Outputs     []Output
}

type Command struct {
	Activated   bool
	Name        string
	Permissions string
	Outputs     []Output
}

type Service struct {
	Name string
	Type string

	// одноразовые поля одного вызова, см. Cleanup
	FilePath     string
	ReadableName string
	Text         string
}

func (s *Service) Cleanup() {
	s.FilePath = ""
	s.ReadableName = ""
	s.Text = ""
}

type Watcher struct {
	Activated bool
	Path      string
	Type      string
	Services  []*Service
	Outputs   []Output

	cycle   sync.Mutex // один цикл опроса за раз
	mu      sync.Mutex
	known   []string
	pending []string
	primed  bool
}

// Known: копия множества файлов, известных по прошлому опросу.
func (w *Watcher) Known() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.known...)
}

func isTransferTmp(p string) bool {
	return path.Ext(p) == transferTmpFileExt
}

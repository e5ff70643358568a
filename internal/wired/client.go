package wired

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("wired: not connected")

// ошибка сервера в ответ на транзакцию
type ServerError struct {
	Request string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("wired: %s failed: %s", e.Request, e.Message)
}

type Config struct {
	Hostname string
	Port     int
	// URL перекрывает hostname/port (ws://... или wss://...)
	URL string

	Login    string
	Password string
	Nick     string
	Status   string
	Icon     []byte

	AutoReconnect   bool
	ReconnectOnKick bool
}

type Client struct {
	cfg Config
	log *zap.Logger

	conn   *websocket.Conn
	cmu    sync.Mutex // conn
	tx     uint32
	mu     sync.Mutex
	cbs    map[uint32]func(*Message) bool
	closed atomic.Bool

	wmu          sync.Mutex // сериализует запись в websocket
	pingStop     chan struct{}
	lastActivity atomic.Int64

	self   atomic.Uint32
	nick   atomic.Value // string
	icon   atomic.Value // []byte
	roster *Roster

	// "События"
	OnConnecting       func()
	OnConnected        func()
	OnMessage          func(*Message)
	OnDisconnected     func()
	OnError            func(error)
	OnDirectoryChanged func(path string)
}

func New(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		cfg:    cfg,
		log:    log,
		cbs:    make(map[uint32]func(*Message) bool),
		roster: NewRoster(),
	}
	c.nick.Store(cfg.Nick)
	c.icon.Store(cfg.Icon)
	return c
}

// Connect устанавливает WebSocket, запускает readLoop и отправляет приветствие.
// Отмена ctx закрывает соединение и останавливает реконнект.
func (c *Client) Connect(ctx context.Context) error {
	if c.OnConnecting != nil {
		c.OnConnecting()
	}
	conn, err := c.dialAndSetup(ctx)
	if err != nil {
		return err
	}
	c.setConn(conn)
	c.closed.Store(false)

	go c.readLoop(ctx)

	if err := c.handshake(ctx, true); err != nil {
		c.Disconnect()
		return err
	}
	if c.OnConnected != nil {
		c.OnConnected()
	}
	return nil
}

func (c *Client) Disconnect() {
	if c.closed.Swap(true) {
		return
	}
	c.closeConn()
}

func (c *Client) IsConnected() bool {
	return c.getConn() != nil && !c.closed.Load()
}

func (c *Client) Roster() *Roster { return c.roster }

// Send пишет сообщение без ожидания ответа.
func (c *Client) Send(m *Message) error {
	conn := c.getConn()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	c.log.Debug("send", zap.String("name", m.Name))

	// запись строго через один мьютекс + write-deadline
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// Request отправляет сообщение с новым номером транзакции. cb получает все
// ответы с этим номером, пока не вернёт true.
func (c *Client) Request(m *Message, cb func(*Message) bool) error {
	_, err := c.request(m, cb)
	return err
}

func (c *Client) request(m *Message, cb func(*Message) bool) (uint32, error) {
	tx := c.nextTx()
	m.Set(FieldTransaction, tx)

	if cb != nil {
		c.mu.Lock()
		c.cbs[tx] = cb
		c.mu.Unlock()
	}
	if err := c.Send(m); err != nil {
		// сеть упала между подготовкой и записью, подчищаем cb
		c.dropCallback(tx)
		return 0, err
	}
	return tx, nil
}

// RequestWait ждёт первый ответ на транзакцию; wired.error превращается в *ServerError.
func (c *Client) RequestWait(ctx context.Context, m *Message) (*Message, error) {
	respCh := make(chan *Message, 1)
	tx, err := c.request(m, func(r *Message) bool {
		respCh <- r
		return true
	})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-respCh:
		if r.Name == msgError {
			return nil, &ServerError{Request: m.Name, Message: r.String(FieldErrorString)}
		}
		return r, nil
	case <-ctx.Done():
		c.dropCallback(tx)
		return nil, ctx.Err()
	}
}

func (c *Client) dropCallback(tx uint32) {
	c.mu.Lock()
	delete(c.cbs, tx)
	c.mu.Unlock()
}

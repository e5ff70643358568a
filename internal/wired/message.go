package wired

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// поля, общие для многих сообщений
const (
	FieldTransaction = "wired.transaction"
	FieldUserID      = "wired.user.id"
	FieldUserNick    = "wired.user.nick"
	FieldUserLogin   = "wired.user.login"
	FieldUserStatus  = "wired.user.status"
	FieldUserIdle    = "wired.user.idle"
	FieldChatID      = "wired.chat.id"
	FieldFilePath    = "wired.file.path"
	FieldErrorString = "wired.error.string"
)

// Message: одно сообщение протокола: имя и плоский набор полей.
type Message struct {
	Name   string
	Fields map[string]any
}

func NewMessage(name string) *Message {
	return &Message{Name: name, Fields: map[string]any{}}
}

// Set кладёт поле; []string превращается в список, понятный structpb.
func (m *Message) Set(key string, v any) *Message {
	switch t := v.(type) {
	case []string:
		l := make([]any, len(t))
		for i, s := range t {
			l[i] = s
		}
		v = l
	case int:
		v = float64(t)
	case uint32:
		v = float64(t)
	}
	m.Fields[key] = v
	return m
}

func (m *Message) Has(key string) bool {
	_, ok := m.Fields[key]
	return ok
}

func (m *Message) String(key string) string {
	s, _ := m.Fields[key].(string)
	return s
}

// Uint32: числа в structpb всегда float64.
func (m *Message) Uint32(key string) uint32 {
	switch v := m.Fields[key].(type) {
	case float64:
		return uint32(v)
	case uint32:
		return v
	case int:
		return uint32(v)
	}
	return 0
}

func (m *Message) Bool(key string) bool {
	b, _ := m.Fields[key].(bool)
	return b
}

func (m *Message) Strings(key string) []string {
	l, _ := m.Fields[key].([]any)
	res := make([]string, 0, len(l))
	for _, v := range l {
		if s, ok := v.(string); ok {
			res = append(res, s)
		}
	}
	return res
}

func (m *Message) Transaction() uint32 { return m.Uint32(FieldTransaction) }

// Marshal кодирует сообщение в бинарный кадр.
func Marshal(m *Message) ([]byte, error) {
	fields := m.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	s, err := structpb.NewStruct(map[string]any{
		"name":   m.Name,
		"fields": fields,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Name, err)
	}
	return proto.Marshal(s)
}

func Unmarshal(data []byte) (*Message, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	raw := s.AsMap()
	name, _ := raw["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("message without name")
	}
	fields, _ := raw["fields"].(map[string]any)
	if fields == nil {
		fields = map[string]any{}
	}
	return &Message{Name: name, Fields: fields}, nil
}

package bot

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Options struct {
	Transport  Transport
	Lister     Lister
	Describers map[string]Describer
	Clock      Clock
	Rand       Rand
	Logger     *zap.Logger
}

// Bot: движок автоответчика: правила, команды и вотчеры одного словаря.
type Bot struct {
	tr         Transport
	lister     Lister
	describers map[string]Describer
	clock      Clock
	log        *zap.Logger

	randMu sync.Mutex
	rnd    Rand

	// всё, что меняет reload, под mu
	mu          sync.RWMutex
	started     bool
	subscribing bool
	path        string
	rules       []*Rule
	commands    []*Command
	watchers    []*Watcher
	doc         []byte
	sum         string

	// один Output (со всеми повторами) уходит целиком
	sendMu sync.Mutex
}

// New загружает словарь по path. Ошибка загрузки фатальна для конструктора.
func New(path string, opts Options) (*Bot, error) {
	if opts.Transport == nil {
		return nil, errors.New("bot: transport is required")
	}
	b := &Bot{
		tr:         opts.Transport,
		lister:     opts.Lister,
		describers: opts.Describers,
		clock:      opts.Clock,
		rnd:        opts.Rand,
		log:        opts.Logger,
		started:    true,
		path:       path,
	}
	if b.clock == nil {
		b.clock = realClock{}
	}
	if b.rnd == nil {
		b.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}

	d, err := LoadDictionary(path)
	if err != nil {
		return nil, err
	}
	b.apply(d)
	b.log.Info("dictionary loaded",
		zap.String("path", path),
		zap.String("sum", d.Sum),
		zap.Int("rules", len(d.Rules)),
		zap.Int("commands", len(d.Commands)),
		zap.Int("watchers", len(d.Watchers)))
	return b, nil
}

func (b *Bot) apply(d *Dictionary) {
	b.rules = d.Rules
	b.commands = d.Commands
	b.watchers = d.Watchers
	b.doc = d.Document
	b.sum = d.Sum
}

func (b *Bot) Path() string { return b.path }

func (b *Bot) Started() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.started
}

func (b *Bot) Subscribing() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subscribing
}

func (b *Bot) Rules() []*Rule {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Rule(nil), b.rules...)
}

func (b *Bot) Commands() []*Command {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Command(nil), b.commands...)
}

func (b *Bot) Watchers() []*Watcher {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Watcher(nil), b.watchers...)
}

// Document: нормализованный текст словаря и его отпечаток (для диагностики).
func (b *Bot) Document() ([]byte, string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.doc, b.sum
}

// Dispatch разбирает одно входящее событие. true: бот что-то сделал.
func (b *Bot) Dispatch(ctx context.Context, ev Event) bool {
	// себе не отвечаем
	if ev.User.ID == b.tr.Self().ID {
		return false
	}
	name := NormalizeMessageName(ev.Name)
	text := ev.Text
	if !ev.HasText {
		text = ""
	}
	head, tail := splitCommand(text)

	b.mu.RLock()
	cmd := b.commandFor(name, head, ev.User)
	started := b.started
	var outputs []Output
	if cmd == nil && started {
		outputs = b.outputsFor(name, text, ev.User)
	}
	b.mu.RUnlock()

	if cmd != nil {
		b.log.Debug("command", zap.String("name", cmd.Name), zap.String("nick", ev.User.Nick))
		ok := b.executeCommand(ctx, cmd, tail, name, ev.User)
		eventsDispatched.WithLabelValues(name, "command").Inc()
		return ok
	}
	if !started {
		eventsDispatched.WithLabelValues(name, "stopped").Inc()
		return false
	}

	out, ok := b.selectOutput(outputs)
	if !ok {
		eventsDispatched.WithLabelValues(name, "nomatch").Inc()
		return false
	}
	eventsDispatched.WithLabelValues(name, "rule").Inc()
	return b.Execute(ctx, out, ev.User)
}

// commandFor вызывается под b.mu. Команды принимаются только из чата и личных сообщений.
func (b *Bot) commandFor(name, head string, u User) *Command {
	if name != MsgChatSay && name != MsgMessage {
		return nil
	}
	if !strings.HasPrefix(head, "!") {
		return nil
	}
	for _, c := range b.commands {
		if !c.Activated || head != "!"+c.Name {
			continue
		}
		if CheckPermissions(c.Permissions, u) {
			return c
		}
	}
	return nil
}

// outputsFor: первое правило с подходящим input отдаёт все свои outputs,
// дальше не смотрим. Вызывается под b.mu.
func (b *Bot) outputsFor(name, text string, u User) []Output {
	for _, r := range b.rules {
		if !r.Activated || !CheckPermissions(r.Permissions, u) {
			continue
		}
		for _, in := range r.Inputs {
			if in.MessageName != name || !in.Match(text) {
				continue
			}
			res := make([]Output, 0, len(r.Outputs))
			for _, o := range r.Outputs {
				res = append(res, o.WithInputText(in.Pattern))
			}
			return res
		}
	}
	return nil
}

func (b *Bot) selectOutput(outputs []Output) (Output, bool) {
	b.randMu.Lock()
	defer b.randMu.Unlock()
	return SelectOutput(b.rnd, outputs)
}

// SelectOutput выбирает ответ равновероятно; пустой список даёт false.
func SelectOutput(r Rand, outputs []Output) (Output, bool) {
	switch len(outputs) {
	case 0:
		return Output{}, false
	case 1:
		return outputs[0], true
	default:
		return outputs[r.Intn(len(outputs))], true
	}
}

// splitCommand режет по первому пробелу.
func splitCommand(text string) (head, tail string) {
	if i := strings.Index(text, " "); i >= 0 {
		return text[:i], text[i+1:]
	}
	return text, ""
}

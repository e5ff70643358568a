package bot

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Execute отправляет output max(1, Repeat) раз, перед каждым разом ждёт Delay секунд.
// Ждёт в вызывающей горутине: пока идут повторы, следующее событие не разбирается.
// Отмена ctx обрывает оставшиеся повторы.
func (b *Bot) Execute(ctx context.Context, o Output, u User) bool {
	if o.Template == "" {
		return false
	}
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.log.Debug("output", zap.String("kind", o.Kind.String()), zap.String("template", o.Template))

	for i := 0; i < o.repeatCount(); i++ {
		if o.Delay > 0 {
			if err := b.clock.Sleep(ctx, time.Duration(o.Delay)*time.Second); err != nil {
				b.log.Debug("output cancelled", zap.Int("sent", i), zap.Error(err))
				return i > 0
			}
		}
		text := RenderTemplate(o, b.tr.Self().Nick, u)
		if err := b.deliver(o.Kind, u, text); err != nil {
			b.log.Warn("send failed", zap.String("kind", o.Kind.String()), zap.Error(err))
		}
	}
	return true
}

func (b *Bot) deliver(k Kind, u User, text string) error {
	var err error
	switch k {
	case KindEmote:
		err = b.tr.Me(text)
	case KindPrivateMessage:
		err = b.tr.PrivateMessage(u.ID, text)
	case KindBroadcast:
		err = b.tr.Broadcast(text)
	default:
		// say, thread и всё прочее из правил уходит обычной репликой
		k = KindSay
		err = b.tr.Say(text)
	}
	if err == nil {
		outputsSent.WithLabelValues(k.String()).Inc()
	}
	return err
}

package bot

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

const reloadFailedText = "failed to reload the dictionary..."

var helpText = strings.Join([]string{
	"Wirebot Help:",
	"",
	"Wirebot responds to chat commands to execute specific",
	"features. A chat command starts with a '!' characters",
	"followed by a keyword. See the list of available chat",
	"commands below:",
	"",
	"!start           : Start the bot",
	"!stop            : Stop the bot",
	"!sleep           : Make the bot idle",
	"!reload          : Reload the dictionary",
	"!nick [nickname] : Change the nick of the bot",
	"!status [status] : Change the status of the bot",
	"!help            : Show this help message",
}, "\n")

// executeCommand выполняет встроенную команду и/или отвечает её output.
// Ответ уходит тем же видом сообщения, каким пришла команда.
func (b *Bot) executeCommand(ctx context.Context, cmd *Command, tail, eventName string, u User) bool {
	var ack *Output
	if o, ok := b.selectOutput(cmd.Outputs); ok {
		o = o.Retarget(eventName)
		ack = &o
	}
	reply := func() {
		if ack != nil {
			b.Execute(ctx, *ack, u)
		}
	}

	switch cmd.Name {
	case "reload":
		if err := b.Reload(ctx); err != nil {
			b.log.Error("reload failed", zap.String("path", b.path), zap.Error(err))
			b.Execute(ctx, Output{Kind: KindEmote, Template: reloadFailedText}, u)
			return false
		}
		reply()

	case "start":
		b.setStarted(true)
		reply()

	case "stop":
		reply()
		b.idle()
		b.setStarted(false)

	case "sleep":
		reply()
		b.idle()

	case "nick":
		if tail != "" {
			if err := b.tr.SetNick(tail); err != nil {
				b.log.Warn("set nick", zap.Error(err))
			}
		}
		reply()

	case "status":
		if err := b.tr.SetStatus(tail); err != nil {
			b.log.Warn("set status", zap.Error(err))
		}
		reply()

	case "help":
		help := Output{Template: helpText}.Retarget(eventName)
		b.Execute(ctx, help, u)

	default:
		reply()
	}
	return true
}

func (b *Bot) setStarted(v bool) {
	b.mu.Lock()
	b.started = v
	b.mu.Unlock()
	b.log.Info("bot state", zap.Bool("started", v))
}

func (b *Bot) idle() {
	if err := b.tr.SetIdle(true); err != nil {
		b.log.Warn("set idle", zap.Error(err))
	}
}

// Reload перечитывает словарь с того же пути. Вотчеры отписываются до загрузки
// и подписываются снова только при успехе; при ошибке остаются прежние правила.
func (b *Bot) Reload(ctx context.Context) error {
	b.UnsubscribeWatchers(ctx)

	d, err := LoadDictionary(b.path)
	if err != nil {
		reloads.WithLabelValues("error").Inc()
		return err
	}

	b.mu.Lock()
	b.apply(d)
	b.mu.Unlock()

	reloads.WithLabelValues("ok").Inc()
	b.log.Info("dictionary reloaded",
		zap.String("path", b.path),
		zap.String("sum", d.Sum),
		zap.Int("rules", len(d.Rules)),
		zap.Int("commands", len(d.Commands)),
		zap.Int("watchers", len(d.Watchers)))

	if r, ok := b.tr.(iconReloader); ok {
		if err := r.ReloadIcon(); err != nil {
			b.log.Warn("reload icon", zap.Error(err))
		}
	}
	b.SubscribeWatchers(ctx)
	return nil
}

package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ========================= наборы файлов =========================

// Prime фиксирует стартовый снимок каталога без реакции на файлы.
func (w *Watcher) Prime(files []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.known = uniq(files)
	w.pending = nil
	w.primed = true
}

// SetPending кладёт результат свежего листинга.
func (w *Watcher) SetPending(files []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = uniq(files)
}

func (w *Watcher) isPrimed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.primed
}

func (w *Watcher) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.known, w.pending, w.primed = nil, nil, false
}

// Diff сравнивает прошлый снимок с pending: удалённые только в лог, добавленные
// возвращаются для реакции. Временные файлы закачки не считаются. Снимок
// заменяется на pending, pending очищается.
func (w *Watcher) Diff() (added, removed []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cur := make(map[string]struct{}, len(w.pending))
	for _, p := range w.pending {
		cur[p] = struct{}{}
	}
	prev := make(map[string]struct{}, len(w.known))
	for _, p := range w.known {
		prev[p] = struct{}{}
	}

	for _, p := range w.known {
		if _, ok := cur[p]; !ok && !isTransferTmp(p) {
			removed = append(removed, p)
		}
	}
	for _, p := range w.pending {
		if _, ok := prev[p]; !ok && !isTransferTmp(p) {
			added = append(added, p)
		}
	}

	w.known = w.pending
	w.pending = nil
	w.primed = true
	return added, removed
}

func uniq(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// ========================= подписка =========================

func (b *Bot) activeWatchers() []*Watcher {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var res []*Watcher
	for _, w := range b.watchers {
		if w.Activated && w.Path != "" {
			res = append(res, w)
		}
	}
	return res
}

// SubscribeWatchers подписывает активные вотчеры и снимает стартовый листинг.
func (b *Bot) SubscribeWatchers(ctx context.Context) {
	ws := b.activeWatchers()
	if len(ws) == 0 {
		return
	}
	b.mu.Lock()
	b.subscribing = true
	b.mu.Unlock()

	for _, w := range ws {
		b.log.Info("watcher subscribe to directory", zap.String("path", w.Path))
		if err := b.tr.SubscribeDirectory(w.Path); err != nil {
			b.log.Warn("subscribe directory", zap.String("path", w.Path), zap.Error(err))
		}
		if b.lister == nil {
			continue
		}
		w.cycle.Lock()
		files, err := b.lister.List(ctx, w.Path)
		if err == nil {
			w.Prime(files)
		}
		w.cycle.Unlock()
		if err != nil {
			b.log.Warn("initial listing failed", zap.String("path", w.Path), zap.Error(err))
		}
	}
}

func (b *Bot) UnsubscribeWatchers(ctx context.Context) {
	b.mu.Lock()
	ws := append([]*Watcher(nil), b.watchers...)
	b.subscribing = false
	b.mu.Unlock()

	for _, w := range ws {
		if !w.Activated || w.Path == "" {
			continue
		}
		b.log.Info("watcher unsubscribe to directory", zap.String("path", w.Path))
		if err := b.tr.UnsubscribeDirectory(w.Path); err != nil {
			b.log.Warn("unsubscribe directory", zap.String("path", w.Path), zap.Error(err))
		}
		// опрос, уже начавший цикл, досчитывает diff по старому снимку
		w.cycle.Lock()
		w.reset()
		w.cycle.Unlock()
	}
}

func (b *Bot) watchersFor(path string) []*Watcher {
	var res []*Watcher
	for _, w := range b.activeWatchers() {
		if w.Path == path {
			res = append(res, w)
		}
	}
	return res
}

// DirectoryChanged: каталог path изменился (уведомление транспорта, fsnotify
// или тик опроса): перелистать и отреагировать на новые файлы.
func (b *Bot) DirectoryChanged(ctx context.Context, path string) error {
	if !b.Subscribing() {
		return nil
	}
	if b.lister == nil {
		return fmt.Errorf("watcher %s: no directory lister", path)
	}
	for _, w := range b.watchersFor(path) {
		if err := b.pollWatcher(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) pollWatcher(ctx context.Context, w *Watcher) error {
	w.cycle.Lock()
	defer w.cycle.Unlock()

	files, err := b.lister.List(ctx, w.Path)
	if err != nil {
		return fmt.Errorf("watcher %s: %w", w.Path, err)
	}
	// первый удачный листинг даёт только снимок
	if !w.isPrimed() {
		w.Prime(files)
		return nil
	}
	w.SetPending(files)
	b.diffWatcher(ctx, w)
	return nil
}

// diffWatcher: Diff плюс реакция на каждый новый файл всеми outputs вотчера.
func (b *Bot) diffWatcher(ctx context.Context, w *Watcher) []string {
	added, removed := w.Diff()
	for _, p := range removed {
		b.log.Info("watcher file removed", zap.String("path", p))
	}
	for _, p := range added {
		watcherFilesAdded.Inc()
		if len(w.Outputs) == 0 {
			continue
		}
		b.log.Info("watcher file added", zap.String("path", p))
		for _, o := range w.Outputs {
			b.executeWatcherOutput(ctx, w, o, p)
		}
	}
	return added
}

// ========================= реакция =========================

func (b *Bot) executeWatcherOutput(ctx context.Context, w *Watcher, o Output, filePath string) {
	var svc *Service
	if len(w.Services) > 0 {
		svc = w.Services[0]
		b.runService(ctx, svc, filePath)
		defer svc.Cleanup()
	}

	nick := b.tr.Self().Nick
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	switch o.Kind {
	case KindThread:
		if o.Board == "" {
			b.log.Warn("thread output without board", zap.String("watcher", w.Path))
			return
		}
		subject := RenderWatcherTemplate(o, nick, w.Path, filePath)
		var text string
		if svc != nil && svc.Text != "" {
			text = svc.Text
		} else {
			text = fmt.Sprintf("[b]Name:[/b] %s\n[b]Path:[/b] %s\n", baseName(filePath), w.Path)
		}
		if err := b.tr.AddThread(o.Board, subject, text); err != nil {
			b.log.Warn("add thread", zap.String("board", o.Board), zap.Error(err))
			return
		}
		outputsSent.WithLabelValues(KindThread.String()).Inc()

	case KindSay:
		if err := b.tr.Say(RenderWatcherTemplate(o, nick, w.Path, filePath)); err != nil {
			b.log.Warn("watcher say", zap.Error(err))
			return
		}
		outputsSent.WithLabelValues(KindSay.String()).Inc()

	default:
		b.log.Debug("watcher output kind ignored", zap.String("kind", o.Kind.String()))
	}
}

// runService: ошибки сервиса не фатальны: просто не будет текста.
func (b *Bot) runService(ctx context.Context, svc *Service, filePath string) {
	svc.FilePath = filePath
	d := b.describers[svc.Name]
	if d == nil {
		d = b.describers[svc.Type]
	}
	if d == nil {
		b.log.Debug("service not registered", zap.String("name", svc.Name), zap.String("type", svc.Type))
		return
	}
	query, text, err := d.Describe(ctx, filePath)
	svc.ReadableName = query
	if err != nil {
		b.log.Warn("service lookup failed",
			zap.String("service", svc.Name), zap.String("query", query), zap.Error(err))
		return
	}
	b.log.Info("service", zap.String("name", svc.Name), zap.String("query", query))
	svc.Text = text
}

// ========================= опрос по таймеру =========================

// PollWatchers переопрашивает все вотчеры раз в every, пока жив ctx.
// Пока транспорт не подключён, ждёт с растущей паузой.
func (b *Bot) PollWatchers(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	notConnectedBackoff := time.Second
	const maxBackoff = 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if c, ok := b.tr.(connectivity); ok && !c.IsConnected() {
				if err := b.clock.Sleep(ctx, notConnectedBackoff); err != nil {
					return
				}
				if notConnectedBackoff < maxBackoff {
					notConnectedBackoff *= 2
					if notConnectedBackoff > maxBackoff {
						notConnectedBackoff = maxBackoff
					}
				}
				continue
			}
			notConnectedBackoff = time.Second

			if !b.Subscribing() || b.lister == nil {
				continue
			}
			for _, w := range b.activeWatchers() {
				if err := b.pollWatcher(ctx, w); err != nil {
					b.log.Warn("watcher poll", zap.Error(err))
				}
			}
		}
	}
}

package fslist

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Notifier следит за каталогами вотчеров и сообщает о изменениях с задержкой
// Debounce: пачка событий одной закачки превращается в одно уведомление.
type Notifier struct {
	Lister
	Debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dirs    map[string]string // os path -> путь вотчера
	pending map[string]time.Time
	log     *zap.Logger
}

func NewNotifier(root string, log *zap.Logger) (*Notifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		Lister:   Lister{Root: root},
		Debounce: 500 * time.Millisecond,
		watcher:  w,
		dirs:     make(map[string]string),
		pending:  make(map[string]time.Time),
		log:      log,
	}, nil
}

func (n *Notifier) Subscribe(dir string) error {
	p := n.osPath(dir)
	if err := n.watcher.Add(p); err != nil {
		return err
	}
	n.mu.Lock()
	n.dirs[p] = dir
	n.mu.Unlock()
	n.log.Info("watching directory", zap.String("path", dir), zap.String("os_path", p))
	return nil
}

func (n *Notifier) Unsubscribe(dir string) error {
	p := n.osPath(dir)
	n.mu.Lock()
	_, ok := n.dirs[p]
	delete(n.dirs, p)
	n.mu.Unlock()
	if !ok {
		return nil
	}
	return n.watcher.Remove(p)
}

// Run блокируется до отмены ctx и закрывает fsnotify при выходе.
func (n *Notifier) Run(ctx context.Context, onChange func(dir string)) error {
	defer n.watcher.Close()

	step := n.Debounce / 4
	if step <= 0 {
		step = 10 * time.Millisecond
	}
	tick := time.NewTicker(step)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-n.watcher.Events:
			if !ok {
				return nil
			}
			n.handleEvent(ev)

		case err, ok := <-n.watcher.Errors:
			if !ok {
				return nil
			}
			n.log.Warn("fsnotify", zap.Error(err))

		case now := <-tick.C:
			for _, dir := range n.due(now) {
				onChange(dir)
			}
		}
	}
}

func (n *Notifier) handleEvent(ev fsnotify.Event) {
	// chmod и запись в уже известный файл состав каталога не меняют
	if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	dir, ok := n.dirs[parentDir(ev.Name)]
	if !ok {
		return
	}
	n.pending[dir] = time.Now()
}

func (n *Notifier) due(now time.Time) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var res []string
	for dir, at := range n.pending {
		if now.Sub(at) >= n.Debounce {
			res = append(res, dir)
			delete(n.pending, dir)
		}
	}
	return res
}

func parentDir(p string) string { return filepath.Dir(p) }

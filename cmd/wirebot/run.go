package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/EgorLis/wirebot/internal/bot"
	"github.com/EgorLis/wirebot/internal/fslist"
	"github.com/EgorLis/wirebot/internal/omdb"
	"github.com/EgorLis/wirebot/internal/settings"
	"github.com/EgorLis/wirebot/internal/wired"
)

const (
	eventQueueSize  = 256
	changeQueueSize = 64
)

func runBot(cctx *cli.Context) error {
	log, err := newLogger(cctx)
	if err != nil {
		return err
	}
	defer log.Sync()

	st, s, err := loadSettings(cctx)
	if err != nil {
		return err
	}
	log.Info("settings loaded", zap.String("path", st.Path()))

	if err := bot.EnsureDictionary(s.DictionaryPath, log); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := wired.New(wiredConfig(st, s, log), log.Named("wired"))

	// колбэки клиента работают на readLoop и не должны ждать ответов сервера:
	// всё, что трогает движок, уходит в очереди и разбирается одним воркером
	events := make(chan bot.Event, eventQueueSize)
	changes := make(chan string, changeQueueSize)
	connected := make(chan struct{}, 1)

	client.OnMessage = func(m *wired.Message) {
		ev, ok := toEvent(m, client.Roster())
		if !ok {
			return
		}
		select {
		case events <- ev:
		default:
			log.Warn("event queue full, dropping", zap.String("name", ev.Name))
		}
	}
	client.OnDirectoryChanged = func(path string) { enqueueChange(changes, path, log) }
	client.OnConnected = func() {
		select {
		case connected <- struct{}{}:
		default:
		}
	}
	client.OnDisconnected = func() { log.Warn("disconnected") }
	client.OnError = func(err error) { log.Error("wired", zap.Error(err)) }

	var iconPath string
	if s.IconPath != "" {
		iconPath = st.Resolve(s.IconPath)
	}
	base := transport{Client: client, iconPath: iconPath}
	var (
		tr       bot.Transport = base
		lister   bot.Lister    = client
		notifier *fslist.Notifier
	)
	if s.WatcherSource == settings.SourceLocal {
		notifier, err = fslist.NewNotifier(st.Resolve(s.WatcherRoot), log.Named("fslist"))
		if err != nil {
			return err
		}
		tr = localTransport{transport: base, n: notifier}
		lister = notifier
	}

	describers := map[string]bot.Describer{}
	if s.OMDbAPIKey != "" {
		describers["omdb"] = omdb.NewClient(omdb.Options{
			APIKey:  s.OMDbAPIKey,
			BaseURL: s.OMDbURL,
			Logger:  log.Named("omdb"),
		})
	}

	b, err := bot.New(s.DictionaryPath, bot.Options{
		Transport:  tr,
		Lister:     lister,
		Describers: describers,
		Logger:     log.Named("bot"),
	})
	if err != nil {
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-connected:
				b.SubscribeWatchers(ctx)
			case ev := <-events:
				b.Dispatch(ctx, ev)
			case path := <-changes:
				if err := b.DirectoryChanged(ctx, path); err != nil {
					log.Warn("directory changed", zap.String("path", path), zap.Error(err))
				}
			case <-hup:
				if err := b.Reload(ctx); err != nil {
					log.Error("reload", zap.Error(err))
				}
			}
		}
	})

	if s.WatcherPollInterval > 0 {
		g.Go(func() error {
			b.PollWatchers(ctx, s.WatcherPollInterval)
			return nil
		})
	}

	if notifier != nil {
		g.Go(func() error {
			return notifier.Run(ctx, func(dir string) { enqueueChange(changes, dir, log) })
		})
	}

	if s.MetricsListen != "" {
		srv := &http.Server{Addr: s.MetricsListen, Handler: metricsHandler()}
		g.Go(func() error {
			log.Info("metrics listening", zap.String("addr", s.MetricsListen))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		defer client.Disconnect()
		if err := connectLoop(ctx, client, s.AutoReconnect, log); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	})

	err = g.Wait()
	log.Info("wirebot stopped")
	return err
}

func wiredConfig(st *settings.Store, s settings.Settings, log *zap.Logger) wired.Config {
	cfg := wired.Config{
		Hostname:        s.Hostname,
		Port:            s.Port,
		URL:             s.URL,
		Login:           s.Login,
		Password:        s.Password,
		Nick:            s.Nick,
		Status:          s.Status,
		AutoReconnect:   s.AutoReconnect,
		ReconnectOnKick: s.ReconnectOnKick,
	}
	if s.IconPath != "" {
		icon, err := os.ReadFile(st.Resolve(s.IconPath))
		switch {
		case err == nil:
			cfg.Icon = icon
		case errors.Is(err, os.ErrNotExist):
			log.Debug("no icon", zap.String("path", s.IconPath))
		default:
			log.Warn("read icon", zap.Error(err))
		}
	}
	return cfg
}

// connectLoop повторяет первое подключение с растущей паузой. Дальше
// переподключением занимается сам клиент.
func connectLoop(ctx context.Context, c *wired.Client, retry bool, log *zap.Logger) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		if !retry || ctx.Err() != nil {
			return err
		}
		log.Warn("connect failed", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func enqueueChange(changes chan<- string, path string, log *zap.Logger) {
	select {
	case changes <- path:
	default:
		log.Warn("change queue full, dropping", zap.String("path", path))
	}
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

package bot

import (
	"context"
	"time"
)

// Transport: исходящая сторона чата. Реализация обязана сериализовать запись.
type Transport interface {
	// Self: собственная учётка бота (id и текущий ник).
	Self() User

	Say(text string) error
	Me(text string) error
	PrivateMessage(userID uint32, text string) error
	Broadcast(text string) error
	AddThread(board, subject, text string) error

	SetNick(nick string) error
	SetStatus(status string) error
	SetIdle(idle bool) error

	SubscribeDirectory(path string) error
	UnsubscribeDirectory(path string) error
}

// Lister отдаёт текущее содержимое каталога вотчера.
type Lister interface {
	List(ctx context.Context, path string) ([]string, error)
}

// Describer: внешний сервис описаний файлов (service в вотчере).
// Возвращает строку запроса, по которой искали, и готовый текст.
type Describer interface {
	Describe(ctx context.Context, filePath string) (query, text string, err error)
}

type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Rand: источник случайности для выбора ответа; *rand.Rand подходит.
type Rand interface {
	Intn(n int) int
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type connectivity interface {
	IsConnected() bool
}

// iconReloader: транспорт, который перечитывает аватар вместе со словарём.
type iconReloader interface {
	ReloadIcon() error
}

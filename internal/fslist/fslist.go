// Package fslist: локальный источник листингов для вотчеров: чтение каталога
// с диска и уведомления fsnotify вместо подписки на сервере.
package fslist

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// Lister читает каталоги из Root. Пути вотчеров ("/Uploads") считаются
// относительными к Root, результат: в тех же виртуальных путях.
type Lister struct {
	Root string
}

func (l Lister) osPath(p string) string {
	return filepath.Join(l.Root, filepath.FromSlash(path.Clean("/"+p)))
}

func (l Lister) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(l.osPath(dir))
	if err != nil {
		return nil, err
	}
	res := make([]string, 0, len(entries))
	for _, e := range entries {
		res = append(res, path.Join(dir, e.Name()))
	}
	sort.Strings(res)
	return res, nil
}

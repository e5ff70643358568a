package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

type Settings struct {
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
	URL      string `yaml:"url,omitempty"`

	Nick     string `yaml:"nick"`
	Status   string `yaml:"status"`
	IconPath string `yaml:"icon_path"`

	DictionaryPath string `yaml:"dictionary_path"`

	AutoReconnect   bool `yaml:"auto_reconnect"`
	ReconnectOnKick bool `yaml:"reconnect_on_kick"`

	OMDbAPIKey string `yaml:"omdb_api_key"`
	OMDbURL    string `yaml:"omdb_url,omitempty"`

	// откуда брать листинг каталогов вотчеров
	WatcherSource string `yaml:"watcher_source"`
	// для local: корень, к которому приставляются пути вотчеров
	WatcherRoot         string        `yaml:"watcher_root,omitempty"`
	WatcherPollInterval time.Duration `yaml:"watcher_poll_interval"`

	MetricsListen string `yaml:"metrics_listen,omitempty"`
}

func Default() Settings {
	return Settings{
		Login:          "admin",
		Password:       "",
		Hostname:       "localhost",
		Port:           4871,
		Nick:           "WireBot",
		Status:         "Jedi in the Matrix",
		IconPath:       "icon.png",
		DictionaryPath: "wirebot.xml",
		AutoReconnect:  true,
		WatcherSource:  SourceRemote,
	}
}

func (s Settings) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	if s.Hostname == "" && s.URL == "" {
		return fmt.Errorf("hostname is empty")
	}
	if s.Nick == "" {
		return fmt.Errorf("nick is empty")
	}
	switch s.WatcherSource {
	case SourceRemote, SourceLocal:
	default:
		return fmt.Errorf("watcher_source %q: want %q or %q", s.WatcherSource, SourceRemote, SourceLocal)
	}
	if s.WatcherPollInterval < 0 {
		return fmt.Errorf("watcher_poll_interval must not be negative")
	}
	return nil
}

// Store: файл настроек рядом со словарём; отсутствующий создаётся с умолчаниями.
type Store struct {
	mu   sync.Mutex
	path string
	data Settings
}

func NewStore(path string) *Store {
	return &Store{path: path, data: Default()}
}

func (st *Store) Path() string { return st.path }

func (st *Store) Load() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(st.path), 0700); err != nil {
		return err
	}
	b, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return st.save() // создаём с умолчаниями
		}
		return err
	}
	data := Default()
	if err := yaml.Unmarshal(b, &data); err != nil {
		return fmt.Errorf("settings %s: %w", st.path, err)
	}
	if err := data.Validate(); err != nil {
		return fmt.Errorf("settings %s: %w", st.path, err)
	}
	st.data = data
	return nil
}

func (st *Store) Save() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.save()
}

func (st *Store) save() error {
	b, err := yaml.Marshal(&st.data)
	if err != nil {
		return err
	}
	return os.WriteFile(st.path, b, 0600)
}

func (st *Store) Get() Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.data
}

func (st *Store) Update(fn func(*Settings)) {
	st.mu.Lock()
	fn(&st.data)
	st.mu.Unlock()
}

// Resolve приводит относительный путь к каталогу файла настроек.
func (st *Store) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(st.path), p)
}

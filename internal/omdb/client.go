package omdb

import (
	"errors"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "http://www.omdbapi.com/"

var (
	// ErrNotFound: сервис ответил response="False".
	ErrNotFound = errors.New("omdb: title not found")
	// ErrNoName: из имени файла не получилось извлечь название.
	ErrNoName = errors.New("omdb: no readable name")
)

type Options struct {
	APIKey  string
	BaseURL string
	// запросов в секунду к сервису
	Rate      float64
	CacheSize int
	Logger    *zap.Logger
	// HTTP перекрывает клиент по умолчанию (3 повтора, 1s..10s)
	HTTP *retryablehttp.Client
}

// Client: поиск описаний фильмов по имени файла.
type Client struct {
	http    *retryablehttp.Client
	apiKey  string
	baseURL string
	limiter *rate.Limiter
	cache   *lru.Cache[string, Movie]
	log     *zap.Logger
}

type Movie struct {
	Title  string `xml:"title,attr"`
	Year   string `xml:"year,attr"`
	Genre  string `xml:"genre,attr"`
	IMDBID string `xml:"imdbID,attr"`
	Poster string `xml:"poster,attr"`
}

type response struct {
	Response string  `xml:"response,attr"`
	Movies   []Movie `xml:"movie"`
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Rate <= 0 {
		opts.Rate = 1
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	hc := opts.HTTP
	if hc == nil {
		hc = retryablehttp.NewClient()
		hc.RetryMax = 3
		hc.RetryWaitMin = 1 * time.Second
		hc.RetryWaitMax = 10 * time.Second
		hc.HTTPClient.Timeout = 20 * time.Second
	}
	hc.Logger = retryablehttp.LeveledLogger(LeveledZap{opts.Logger.Sugar()})

	// ошибка только при size <= 0
	cache, _ := lru.New[string, Movie](opts.CacheSize)
	return &Client{
		http:    hc,
		apiKey:  opts.APIKey,
		baseURL: opts.BaseURL,
		limiter: rate.NewLimiter(rate.Limit(opts.Rate), 1),
		cache:   cache,
		log:     opts.Logger,
	}
}

// LeveledZap пишет логи retryablehttp в zap.
type LeveledZap struct {
	inner *zap.SugaredLogger
}

// ошибки клиента: это повторы, поэтому WARN
func (l LeveledZap) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Warnw(msg, keysAndValues...)
}

func (l LeveledZap) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warnw(msg, keysAndValues...)
}

func (l LeveledZap) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Infow(msg, keysAndValues...)
}

func (l LeveledZap) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Debugw(msg, keysAndValues...)
}

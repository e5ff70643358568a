package omdb

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wirebot_lookup_requests_total",
	Help: "Movie lookups by result.",
}, []string{"result"})

// Describe ищет фильм по имени файла и возвращает строку поиска и BBCode-карточку.
func (c *Client) Describe(ctx context.Context, filePath string) (string, string, error) {
	query := ReadableName(filePath)
	if query == "" {
		return "", "", ErrNoName
	}
	c.log.Info("service searching", zap.String("query", query))

	if m, ok := c.cache.Get(query); ok {
		lookups.WithLabelValues("cache").Inc()
		return query, Format(m, filePath), nil
	}

	m, err := c.fetch(ctx, query)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			lookups.WithLabelValues("notfound").Inc()
		} else {
			lookups.WithLabelValues("error").Inc()
		}
		return query, "", err
	}
	lookups.WithLabelValues("ok").Inc()
	c.cache.Add(query, m)
	return query, Format(m, filePath), nil
}

// Format собирает карточку фильма для треда.
func Format(m Movie, filePath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[b]Title:[/b] %s\n", m.Title)
	fmt.Fprintf(&b, "[b]Year:[/b] %s\n", m.Year)
	fmt.Fprintf(&b, "[b]Genre:[/b] %s\n", m.Genre)
	fmt.Fprintf(&b, "[b]IMDB:[/b] [url]http://www.imdb.com/title/%s[/url]\n", m.IMDBID)
	fmt.Fprintf(&b, "[b]Path:[/b] %s\n\n", filePath)
	fmt.Fprintf(&b, "[img]%s[/img]", m.Poster)
	return b.String()
}

func (c *Client) requestURL(query string) string {
	v := url.Values{}
	v.Set("apiKey", c.apiKey)
	v.Set("t", query)
	v.Set("r", "xml")
	return c.baseURL + "?" + v.Encode()
}

func (c *Client) fetch(ctx context.Context, query string) (Movie, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Movie{}, err
	}
	u := c.requestURL(query)
	c.log.Debug("service url", zap.String("url", strings.Replace(u, c.apiKey, "***", 1)))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Movie{}, err
	}
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("User-Agent", "wirebot")

	resp, err := c.http.Do(req)
	if err != nil {
		return Movie{}, fmt.Errorf("omdb request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Movie{}, fmt.Errorf("omdb: unexpected status %d", resp.StatusCode)
	}

	var r response
	if err := xml.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Movie{}, fmt.Errorf("omdb decode: %w", err)
	}
	if r.Response != "True" || len(r.Movies) == 0 {
		return Movie{}, ErrNotFound
	}
	// при нескольких совпадениях берётся последнее
	return r.Movies[len(r.Movies)-1], nil
}

package omdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadableName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/Movies/Heat.1995.1080p.BluRay.x264.mkv", "heat"},
		{"/Movies/The.Big.Lebowski.DVDRip.XviD.avi", "the big lebowski"},
		{"Blade.Runner.(1982).mkv", "blade runner"},
		{"/Movies/[YIFY] Alien 1979.mp4", "alien"},
		{"Some.Cats.720p.mkv", "some cats"},
		{"Plain Title.mkv", "plain title"},
		{"/Movies/Noext", "noext"},
		{"/Movies/2001.mkv", ""},
		{"/", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReadableName(tt.in), tt.in)
	}
}

const heatXML = `<?xml version="1.0" encoding="UTF-8"?>
<root response="True"><movie title="Heat" year="1995" genre="Crime, Drama" imdbID="tt0113277" poster="http://img/heat.jpg"/></root>`

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	hc := retryablehttp.NewClient()
	hc.RetryMax = 2
	hc.RetryWaitMin = time.Millisecond
	hc.RetryWaitMax = 5 * time.Millisecond
	return NewClient(Options{APIKey: "k3y", BaseURL: srv.URL + "/", Rate: 1000, HTTP: hc})
}

func TestDescribe(t *testing.T) {
	assert := assert.New(t)
	var hits atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal("k3y", r.URL.Query().Get("apiKey"))
		assert.Equal("heat", r.URL.Query().Get("t"))
		assert.Equal("xml", r.URL.Query().Get("r"))
		_, _ = w.Write([]byte(heatXML))
	})

	query, text, err := c.Describe(context.Background(), "/Movies/Heat.1995.mkv")
	require.NoError(t, err)
	assert.Equal("heat", query)
	assert.Equal("[b]Title:[/b] Heat\n"+
		"[b]Year:[/b] 1995\n"+
		"[b]Genre:[/b] Crime, Drama\n"+
		"[b]IMDB:[/b] [url]http://www.imdb.com/title/tt0113277[/url]\n"+
		"[b]Path:[/b] /Movies/Heat.1995.mkv\n\n"+
		"[img]http://img/heat.jpg[/img]", text)

	// второй раз из кэша, но с новым путём
	_, text, err = c.Describe(context.Background(), "/Other/Heat.1995.DVDRip.avi")
	require.NoError(t, err)
	assert.Contains(text, "[b]Path:[/b] /Other/Heat.1995.DVDRip.avi\n")
	assert.Equal(int32(1), hits.Load())
}

func TestDescribeQueryEscaping(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "t=the+big+lebowski")
		_, _ = w.Write([]byte(heatXML))
	})
	_, _, err := c.Describe(context.Background(), "The.Big.Lebowski.XviD.avi")
	assert.NoError(t, err)
}

func TestDescribeNotFound(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<root response="False"><error>Movie not found!</error></root>`))
	})
	notFound, failed := lookupCount(t, "notfound"), lookupCount(t, "error")

	query, text, err := c.Describe(context.Background(), "Unknown.Thing.mkv")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "unknown thing", query)
	assert.Empty(t, text)

	assert.Equal(t, notFound+1, lookupCount(t, "notfound"))
	assert.Equal(t, failed, lookupCount(t, "error"))
}

func lookupCount(t *testing.T, result string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, lookups.WithLabelValues(result).Write(&m))
	return m.GetCounter().GetValue()
}

func TestDescribeNoName(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, _, err := c.Describe(context.Background(), "/Movies/1999.mkv")
	assert.ErrorIs(t, err, ErrNoName)
}

func TestDescribeServerError(t *testing.T) {
	var hits atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	_, _, err := c.Describe(context.Background(), "Heat.mkv")
	assert.Error(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestDescribeCancelled(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(heatXML))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.Describe(ctx, "Heat.mkv")
	assert.Error(t, err)
}

package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fragmentOrigin serves fragments over HTTP and records every requested path.
type fragmentOrigin struct {
	mu    sync.Mutex
	paths []string
	serve func(n int, w http.ResponseWriter, r *http.Request)
}

func (o *fragmentOrigin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	o.paths = append(o.paths, r.URL.Path)
	n := len(o.paths)
	o.mu.Unlock()
	o.serve(n, w, r)
}

func (o *fragmentOrigin) requested() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.paths...)
}

func newOrigin(t *testing.T, serve func(n int, w http.ResponseWriter, r *http.Request)) (*fragmentOrigin, *HTTPSource) {
	t.Helper()
	origin := &fragmentOrigin{serve: serve}
	srv := httptest.NewServer(origin)
	t.Cleanup(srv.Close)
	src, err := NewHTTPSource(srv.URL, 0)
	require.NoError(t, err)
	return origin, src
}

func TestHTTPSourceGet(t *testing.T) {
	origin, src := newOrigin(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/components/header.html" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Accept") != "text/html" {
			w.WriteHeader(http.StatusNotAcceptable)
			return
		}
		_, _ = w.Write([]byte(headerFragment))
	})

	resp, err := src.Get(context.Background(), "/components/header.html")
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.Equal(t, headerFragment, string(resp.Body))

	resp, err = src.Get(context.Background(), "/components/missing.html")
	require.NoError(t, err)
	require.False(t, resp.OK())
	require.Equal(t, http.StatusNotFound, resp.Status)

	require.Equal(t, []string{"/components/header.html", "/components/missing.html"}, origin.requested())
}

func TestNewHTTPSourceRequiresAbsoluteOrigin(t *testing.T) {
	_, err := NewHTTPSource("components", 0)
	require.Error(t, err)

	_, err = NewHTTPSource("//example.com", 0)
	require.Error(t, err)
}

func TestHTTPSourceCapsBody(t *testing.T) {
	_, src := newOrigin(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", maxFragmentBytes+512)))
	})

	resp, err := src.Get(context.Background(), "/components/huge.html")
	require.NoError(t, err)
	require.Len(t, resp.Body, maxFragmentBytes)
}

func TestHTTPSourceTimeout(t *testing.T) {
	origin := &fragmentOrigin{serve: func(_ int, w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}}
	srv := httptest.NewServer(origin)
	t.Cleanup(srv.Close)

	src, err := NewHTTPSource(srv.URL, 50*time.Millisecond)
	require.NoError(t, err)

	_, err = src.Get(context.Background(), "/components/header.html")
	require.Error(t, err)
}

func TestFetchOverHTTPRetriesAfterNotFound(t *testing.T) {
	origin, src := newOrigin(t, func(n int, w http.ResponseWriter, r *http.Request) {
		if n == 1 {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(headerFragment))
	})
	page := newTestPage(t, shellHTML, "http://example.com/services/mould-removal.html")
	f := newTestFetcher(t, src)

	res := f.Fetch(context.Background(), page, "header", "../components/header.html")
	require.True(t, res.OK)
	require.Equal(t, "../components/header.html", res.Path)
	require.Equal(t, ".././components/header.html", res.Served)
	require.Equal(t, []string{"/components/header.html", "/components/header.html"}, origin.requested())
	require.Equal(t, 4, mountDoc(t, page, "header").Find("nav a").Length())
}

func TestFetchOverHTTPEmptyBodyShowsErrorPanel(t *testing.T) {
	origin, src := newOrigin(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(" \n\t"))
	})
	page := newTestPage(t, shellHTML, "http://example.com/index.html")
	f := newTestFetcher(t, src)

	res := f.Fetch(context.Background(), page, "footer", "components/footer.html")
	require.False(t, res.OK)
	require.ErrorIs(t, res.Err, ErrEmptyFragment)
	require.Len(t, origin.requested(), 2)

	panel := mountDoc(t, page, "footer").Find(".component-error")
	require.Equal(t, 1, panel.Length())
	require.Contains(t, panel.Text(), "component file is empty")
}

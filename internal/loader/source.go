package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"jimshazmatremoval.com.au/auburn-web/internal/cache"
)

const (
	defaultHTTPTimeout = 5 * time.Second
	maxFragmentBytes   = 2 << 20
)

// Response is the outcome of a fragment retrieval.
type Response struct {
	Status int
	Body   []byte
}

// OK reports a 2xx status.
func (r Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Source retrieves fragments by site path (or absolute URL).
type Source interface {
	Get(ctx context.Context, ref string) (Response, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, ref string) (Response, error)

func (f SourceFunc) Get(ctx context.Context, ref string) (Response, error) { return f(ctx, ref) }

// FSSource serves fragments from the site tree.
type FSSource struct {
	fsys fs.FS
}

// NewFSSource wraps fsys, typically os.DirFS(siteRoot).
func NewFSSource(fsys fs.FS) *FSSource {
	return &FSSource{fsys: fsys}
}

func (s *FSSource) Get(ctx context.Context, ref string) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	name := strings.TrimPrefix(path.Clean("/"+ref), "/")
	if name == "" || !fs.ValidPath(name) {
		return Response{Status: http.StatusNotFound}, nil
	}
	body, err := fs.ReadFile(s.fsys, name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Response{Status: http.StatusNotFound}, nil
	case errors.Is(err, fs.ErrPermission):
		return Response{Status: http.StatusForbidden}, nil
	case err != nil:
		return Response{}, fmt.Errorf("loader: read %s: %w", name, err)
	}
	return Response{Status: http.StatusOK, Body: body}, nil
}

// HTTPSource fetches fragments from a remote origin.
type HTTPSource struct {
	base *url.URL
	http *http.Client
}

// NewHTTPSource resolves relative refs against origin. A zero timeout uses the default.
func NewHTTPSource(origin string, timeout time.Duration) (*HTTPSource, error) {
	base, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return nil, fmt.Errorf("loader: parse fragment origin: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("loader: fragment origin %q must be absolute", origin)
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPSource{base: base, http: &http.Client{Timeout: timeout}}, nil
}

func (s *HTTPSource) Get(ctx context.Context, ref string) (Response, error) {
	target, err := url.Parse(ref)
	if err != nil {
		return Response{}, fmt.Errorf("loader: invalid fragment ref %q: %w", ref, err)
	}
	endpoint := s.base.ResolveReference(target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := s.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFragmentBytes))
	if err != nil {
		return Response{}, fmt.Errorf("loader: read %s: %w", endpoint, err)
	}
	return Response{Status: resp.StatusCode, Body: body}, nil
}

// CachedSource keeps successful, non-empty responses in a cache.Store.
type CachedSource struct {
	next  Source
	store cache.Store
	ttl   time.Duration
}

// NewCachedSource wraps next with store.
func NewCachedSource(next Source, store cache.Store, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, store: store, ttl: ttl}
}

func (s *CachedSource) Get(ctx context.Context, ref string) (Response, error) {
	if body, err := s.store.Get(ctx, ref); err == nil {
		return Response{Status: http.StatusOK, Body: body}, nil
	}
	resp, err := s.next.Get(ctx, ref)
	if err != nil {
		return resp, err
	}
	if resp.OK() && len(strings.TrimSpace(string(resp.Body))) > 0 {
		// A cache write failure only costs a refetch.
		_ = s.store.Set(ctx, ref, resp.Body, s.ttl)
	}
	return resp, nil
}

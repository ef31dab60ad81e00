package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"

	"jimshazmatremoval.com.au/auburn-web/internal/content"
	"jimshazmatremoval.com.au/auburn-web/internal/loader"
	"jimshazmatremoval.com.au/auburn-web/internal/requestctx"
	"jimshazmatremoval.com.au/auburn-web/internal/site"
)

// toggleParam names the query parameter that clicks a sidebar service trigger before rendering.
const toggleParam = "toggle"

var errPageNotFound = errors.New("page not found")

// pageBuilder turns site documents into assembled pages.
type pageBuilder struct {
	site      fs.FS
	content   *content.Renderer
	assembler *loader.Assembler
	manifest  site.Manifest
}

// pageName maps a request path to a site document, defaulting directories to the home page.
func (b *pageBuilder) pageName(urlPath string) (string, bool) {
	if urlPath == "" || strings.HasSuffix(urlPath, "/") {
		urlPath += b.manifest.Pages.Home
	}
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if path.Ext(name) == "" {
		name += ".html"
	}
	if path.Ext(name) != ".html" || !fs.ValidPath(name) {
		return "", false
	}
	return name, true
}

// source returns the raw document for name: the .html file itself or a markdown page of the
// same slug wrapped in the content shell.
func (b *pageBuilder) source(name string, loc loader.Location) ([]byte, error) {
	raw, err := fs.ReadFile(b.site, name)
	if err == nil {
		return raw, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	md := strings.TrimSuffix(name, ".html") + ".md"
	raw, err = b.content.Load(b.site, md, loc.Prefix())
	if errors.Is(err, content.ErrNotFound) {
		return nil, errPageNotFound
	}
	return raw, err
}

// build assembles name at loc, optionally clicking the sidebar trigger for toggle.
func (b *pageBuilder) build(ctx context.Context, name string, loc loader.Location, toggle string) ([]byte, loader.Report, error) {
	raw, err := b.source(name, loc)
	if err != nil {
		return nil, loader.Report{}, err
	}
	page, err := loader.NewPage(bytes.NewReader(raw), loc)
	if err != nil {
		return nil, loader.Report{}, fmt.Errorf("parse %s: %w", name, err)
	}
	report, err := b.assembler.Assemble(ctx, page)
	if err != nil {
		return nil, report, err
	}
	if toggle != "" && !loader.ToggleService(page, report.Sidebar, toggle) {
		requestctx.Logger(ctx).Debug("sidebar toggle ignored", zap.String("service", toggle))
	}
	var out bytes.Buffer
	if err := page.Render(&out); err != nil {
		return nil, report, fmt.Errorf("render %s: %w", name, err)
	}
	return out.Bytes(), report, nil
}

// ServeHTTP assembles the requested page for this request's location.
func (b *pageBuilder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, ok := b.pageName(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if canonical := "/" + name; r.URL.Path != "/" && r.URL.Path != canonical {
		// Fragment paths and nav matching both resolve against the page's own URL.
		target := canonical
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return
	}
	body, report, err := b.build(ctx, name, loader.ResolveRequest(r), r.URL.Query().Get(toggleParam))
	switch {
	case errors.Is(err, errPageNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		requestctx.Logger(ctx).Info("page assembly abandoned", zap.String("page", name), zap.Error(err))
		return
	case err != nil:
		requestctx.Logger(ctx).Error("page assembly failed", zap.String("page", name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	failed := 0
	for _, res := range report.Results {
		if !res.OK {
			failed++
		}
	}
	if failed > 0 {
		requestctx.Logger(ctx).Warn("page served with fragment errors", zap.String("page", name), zap.Int("failed", failed))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(body)
}

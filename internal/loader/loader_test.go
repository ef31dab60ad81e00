package loader

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const shellHTML = `<!DOCTYPE html><html><head><title>t</title></head><body>
<div id="header"></div>
<main>content</main>
<div id="footer"></div>
</body></html>`

const sidebarShellHTML = `<!DOCTYPE html><html><head><title>t</title></head><body>
<div id="header"></div>
<aside id="service-sidebar"></aside>
<div id="footer"></div>
</body></html>`

const headerFragment = `<nav>
  <a href="index.html">Home</a>
  <a href="services.html">Services</a>
  <a href="our-services.html">Our Services</a>
  <a href="./contact.html">Contact</a>
</nav>
<img src="./assets/img/logo.png" alt="logo">`

const footerFragment = `<footer><a href="docs/./brochure.pdf">Brochure</a><a href="https://example.com">x</a></footer>`

const sidebarFragment = `<div class="service-section mould-section">
  <a href="#" class="service-main" data-service="mould">Mould <i></i></a>
  <div class="service-sub-container mould-submenu">
    <a class="service-sub" data-page="mould-removal" href="mould-removal.html">Removal</a>
  </div>
</div>
<div class="service-section asbestos-section">
  <a href="#" class="service-main" data-service="asbestos">Asbestos <i></i></a>
  <div class="service-sub-container asbestos-submenu">
    <a class="service-sub" data-page="asbestos-testing" href="asbestos-testing.html">Testing</a>
  </div>
</div>`

func siteFS() fstest.MapFS {
	return fstest.MapFS{
		"components/header.html":          {Data: []byte(headerFragment)},
		"components/footer.html":          {Data: []byte(footerFragment)},
		"components/service-sidebar.html": {Data: []byte(sidebarFragment)},
		"components/empty.html":           {Data: []byte("   \n")},
	}
}

func newTestPage(t *testing.T, markup, raw string) *Page {
	t.Helper()
	page, err := NewPage(strings.NewReader(markup), mustLocation(t, raw))
	require.NoError(t, err)
	return page
}

func newTestFetcher(t *testing.T, src Source) *Fetcher {
	t.Helper()
	f, err := NewFetcher(src)
	require.NoError(t, err)
	return f
}

func mountDoc(t *testing.T, page *Page, id string) *goquery.Document {
	t.Helper()
	inner, err := page.MountHTML(id)
	require.NoError(t, err)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(inner))
	require.NoError(t, err)
	return doc
}

// countingSource records refs and counts mount-visible calls.
type countingSource struct {
	mu   sync.Mutex
	next Source
	refs []string
}

func (c *countingSource) Get(ctx context.Context, ref string) (Response, error) {
	c.mu.Lock()
	c.refs = append(c.refs, ref)
	c.mu.Unlock()
	return c.next.Get(ctx, ref)
}

func TestFetchMountsFragment(t *testing.T) {
	page := newTestPage(t, shellHTML, "http://example.com/index.html")
	f := newTestFetcher(t, NewFSSource(siteFS()))

	res := f.Fetch(context.Background(), page, "header", "components/header.html")
	require.True(t, res.OK)
	require.NoError(t, res.Err)
	require.Equal(t, "components/header.html", res.Served)

	doc := mountDoc(t, page, "header")
	require.Equal(t, 4, doc.Find("nav a").Length())
}

func TestFetchRetriesAlternatePath(t *testing.T) {
	page := newTestPage(t, shellHTML, "http://example.com/index.html")
	var calls int
	src := SourceFunc(func(_ context.Context, ref string) (Response, error) {
		calls++
		if calls == 1 {
			return Response{Status: http.StatusBadGateway}, nil
		}
		return Response{Status: http.StatusOK, Body: []byte("<p>alt</p>")}, nil
	})
	f := newTestFetcher(t, src)

	res := f.Fetch(context.Background(), page, "footer", "components/footer.html")
	require.True(t, res.OK)
	require.Equal(t, "./components/footer.html", res.Served)
	require.Equal(t, 2, calls)
	require.Equal(t, "alt", mountDoc(t, page, "footer").Find("p").Text())
}

func TestFetchDoubleFailureShowsErrorPanel(t *testing.T) {
	page := newTestPage(t, shellHTML, "http://example.com/services/mould-removal.html")
	src := &countingSource{next: NewFSSource(fstest.MapFS{})}
	f := newTestFetcher(t, src)

	res := f.Fetch(context.Background(), page, "header", "../components/header.html")
	require.False(t, res.OK)

	var statusErr *StatusError
	require.True(t, errors.As(res.Err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.Status)
	require.Len(t, src.refs, 2)

	panel := mountDoc(t, page, "header").Find(".component-error")
	require.Equal(t, 1, panel.Length())
	require.Contains(t, panel.Text(), "../components/header.html")
	require.Contains(t, panel.Text(), "404")
}

func TestFetchEmptyBodyIsFailure(t *testing.T) {
	page := newTestPage(t, shellHTML, "http://example.com/index.html")
	f := newTestFetcher(t, NewFSSource(siteFS()))

	res := f.Fetch(context.Background(), page, "footer", "components/empty.html")
	require.False(t, res.OK)
	require.ErrorIs(t, res.Err, ErrEmptyFragment)
	require.Contains(t, mountDoc(t, page, "footer").Text(), "component file is empty")
}

func TestFetchFileProtocolMakesNoRequest(t *testing.T) {
	page := newTestPage(t, shellHTML, "file:///home/me/site/index.html")
	src := SourceFunc(func(context.Context, string) (Response, error) {
		t.Fatal("no request expected under file protocol")
		return Response{}, nil
	})
	f := newTestFetcher(t, src)

	res := f.Fetch(context.Background(), page, "header", "components/header.html")
	require.False(t, res.OK)
	require.ErrorIs(t, res.Err, ErrFileProtocol)
	require.Equal(t, 1, mountDoc(t, page, "header").Find(".component-error--file").Length())
}

func TestFetchSourceErrorIsRecovered(t *testing.T) {
	page := newTestPage(t, shellHTML, "http://example.com/index.html")
	f := newTestFetcher(t, SourceFunc(func(context.Context, string) (Response, error) {
		return Response{}, errors.New("connection refused")
	}))

	res := f.Fetch(context.Background(), page, "header", "components/header.html")
	require.False(t, res.OK)
	require.Contains(t, mountDoc(t, page, "header").Text(), "connection refused")
}

func TestErrorPanelEscapesInput(t *testing.T) {
	panel := ErrorPanel(errors.New("<script>"), `components/"x".html`)
	require.NotContains(t, panel, "<script>")
	require.Contains(t, panel, "&lt;script&gt;")
}

func TestFixPathsIsIdempotent(t *testing.T) {
	nested := mustLocation(t, "http://example.com/services/mould-removal.html")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div id="c">
<img src="./assets/logo.png"><img src="assets/other.png">
<a href="./contact.html">c</a><a href="docs/./guide.pdf">g</a><a href="../docs/x.pdf">x</a>
<a href="https://example.com/a.pdf">ext</a></div>`))
	require.NoError(t, err)
	container := doc.Find("#c")

	require.Equal(t, 3, FixPaths(nested, container))
	require.Equal(t, 0, FixPaths(nested, container))

	require.Equal(t, "../assets/logo.png", container.Find("img").First().AttrOr("src", ""))
	require.Equal(t, "assets/other.png", container.Find("img").Last().AttrOr("src", ""))
	require.Equal(t, "../contact.html", container.Find("a").Eq(0).AttrOr("href", ""))
	require.Equal(t, "../docs/guide.pdf", container.Find("a").Eq(1).AttrOr("href", ""))
	require.Equal(t, "../docs/x.pdf", container.Find("a").Eq(2).AttrOr("href", ""))
	require.Equal(t, "https://example.com/a.pdf", container.Find("a").Eq(3).AttrOr("href", ""))
}

func TestFixPathsFlatPageUntouched(t *testing.T) {
	flat := mustLocation(t, "http://example.com/index.html")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div><img src="./a.png"></div>`))
	require.NoError(t, err)

	require.Equal(t, 0, FixPaths(flat, doc.Find("div")))
	require.Equal(t, "./a.png", doc.Find("img").AttrOr("src", ""))
}

func TestFrameRunsQueuedWorkInOrder(t *testing.T) {
	frame := NewFrame()
	var order []int
	frame.AfterRender(func() {
		order = append(order, 1)
		frame.AfterRender(func() { order = append(order, 3) })
	})
	frame.AfterRender(func() { order = append(order, 2) })

	require.Equal(t, 2, frame.Flush())
	require.Equal(t, []int{1, 2}, order)
	require.Equal(t, 1, frame.Pending())
	require.Equal(t, 1, frame.Flush())
	require.Equal(t, []int{1, 2, 3}, order)
	require.Equal(t, 2, frame.Passes())
}

func TestSetMountMissingMount(t *testing.T) {
	page := newTestPage(t, shellHTML, "http://example.com/index.html")
	require.ErrorIs(t, page.SetMount("service-sidebar", "<p>x</p>"), ErrMountNotFound)
	require.False(t, page.HasMount("service-sidebar"))
	require.True(t, page.HasMount("header"))
}

package content

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(Mounts{})
	require.NoError(t, err)
	return r
}

func TestParseFrontMatterAndSanitises(t *testing.T) {
	r := newRenderer(t)
	raw := []byte("---\ntitle: Mould Removal Sydney\ndescription: Safe mould remediation\nsidebar: true\n---\n\n## Our process\n\n<script>alert(1)</script>\n\nSee [contact](contact.html).\n")

	page, err := r.Parse("mould-removal", raw)
	require.NoError(t, err)
	require.Equal(t, "Mould Removal Sydney", page.Title)
	require.Equal(t, "Safe mould remediation", page.Description)
	require.True(t, page.Sidebar)
	require.Contains(t, string(page.Body), "<h2")
	require.NotContains(t, string(page.Body), "<script>")
	require.Contains(t, string(page.Body), `rel="nofollow"`)
}

func TestParseDerivesTitleFromSlug(t *testing.T) {
	r := newRenderer(t)
	page, err := r.Parse("asbestos-testing_nsw", []byte("Body only"))
	require.NoError(t, err)
	require.Equal(t, "Asbestos Testing Nsw", page.Title)
	require.False(t, page.Sidebar)
}

func TestParseRejectsBadFrontMatter(t *testing.T) {
	r := newRenderer(t)
	_, err := r.Parse("x", []byte("---\ntitle: [\n---\nbody"))
	require.Error(t, err)
}

func TestLoadWrapsPageInShellWithMounts(t *testing.T) {
	r := newRenderer(t)
	fsys := fstest.MapFS{
		"services/mould-inspection.md": {Data: []byte("---\nsidebar: true\n---\nInspection details")},
		"faq.md":                       {Data: []byte("Questions")},
	}

	out, err := r.Load(fsys, "services/mould-inspection.md", "../")
	require.NoError(t, err)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(out)))
	require.NoError(t, err)
	require.Equal(t, 1, doc.Find("#header").Length())
	require.Equal(t, 1, doc.Find("#footer").Length())
	require.Equal(t, 1, doc.Find("#service-sidebar").Length())
	require.Equal(t, "Mould Inspection", doc.Find("article h1").Text())
	require.Equal(t, "../assets/css/style.css", doc.Find("link[rel=stylesheet]").AttrOr("href", ""))

	out, err = r.Load(fsys, "faq.md", "./")
	require.NoError(t, err)
	doc, err = goquery.NewDocumentFromReader(strings.NewReader(string(out)))
	require.NoError(t, err)
	require.Equal(t, 0, doc.Find("#service-sidebar").Length())

	_, err = r.Load(fsys, "missing.md", "./")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSplitFrontMatterWithoutClosingDelimiter(t *testing.T) {
	fm, body := SplitFrontMatter("---\ntitle: x\nno end")
	require.Empty(t, fm)
	require.Equal(t, "---\ntitle: x\nno end", body)
}

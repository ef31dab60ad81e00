package nav

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const headerHTML = `
<header>
  <nav>
    <a href="index.html">Home</a>
    <a href="services.html">Services</a>
    <a href="our-services.html" class="font-bold">Our Services</a>
    <a href="contact.html">Contact</a>
  </nav>
  <a href="services.html">Outside nav</a>
</header>`

func parse(t *testing.T) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(headerHTML))
	require.NoError(t, err)
	return doc
}

func TestHighlightExactMatchOnly(t *testing.T) {
	doc := parse(t)
	h := NewHighlighter(nil, "")

	require.Equal(t, 1, h.Highlight(doc.Selection, "services.html"))

	services := doc.Find(`nav a[href="services.html"]`)
	require.True(t, services.HasClass("text-[#F26727]"))
	require.True(t, services.HasClass("font-bold"))
	require.Equal(t, "page", services.AttrOr("aria-current", ""))

	ours := doc.Find(`nav a[href="our-services.html"]`)
	require.False(t, ours.HasClass("text-[#F26727]"))
	_, marked := ours.Attr("aria-current")
	require.False(t, marked)

	require.False(t, doc.Find(`header > a`).HasClass("text-[#F26727]"))
}

func TestHighlightEmptyFilenameUsesDefaultPage(t *testing.T) {
	doc := parse(t)
	h := NewHighlighter(nil, "")

	require.Equal(t, 1, h.Highlight(doc.Selection, ""))
	require.True(t, doc.Find(`nav a[href="index.html"]`).HasClass("font-bold"))
}

func TestHighlightIsIdempotentAndClearsStaleMarkers(t *testing.T) {
	doc := parse(t)
	h := NewHighlighter([]string{"is-active"}, "home.html")

	h.Highlight(doc.Selection, "contact.html")
	h.Highlight(doc.Selection, "contact.html")
	require.Equal(t, 1, doc.Find(".is-active").Length())

	h.Highlight(doc.Selection, "services.html")
	require.False(t, doc.Find(`nav a[href="contact.html"]`).HasClass("is-active"))
	require.True(t, doc.Find(`nav a[href="services.html"]`).HasClass("is-active"))
	require.Equal(t, 1, doc.Find("[aria-current]").Length())

	// Classes shipped with the markup survive clearing.
	require.True(t, doc.Find(`nav a[href="our-services.html"]`).HasClass("font-bold"))
}

func TestHighlightClearKeepsAuthoredClassesOnActivatedLink(t *testing.T) {
	doc := parse(t)
	h := NewHighlighter(nil, "")

	require.Equal(t, 1, h.Highlight(doc.Selection, "our-services.html"))
	ours := doc.Find(`nav a[href="our-services.html"]`)
	require.True(t, ours.HasClass("text-[#F26727]"))
	require.Equal(t, "text-[#F26727]", ours.AttrOr("data-nav-active", ""))

	require.Equal(t, 1, h.Highlight(doc.Selection, "contact.html"))
	require.Equal(t, "font-bold", ours.AttrOr("class", ""))
	_, marked := ours.Attr("data-nav-active")
	require.False(t, marked)
	require.True(t, doc.Find(`nav a[href="contact.html"]`).HasClass("font-bold"))
}

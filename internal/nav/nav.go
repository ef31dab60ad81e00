package nav

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	linkSelector = "nav a[href]"
	// markerAttr holds the classes this package added to a link; clearing removes only those.
	markerAttr = "data-nav-active"
)

// DefaultActiveClasses style the link of the current page.
var DefaultActiveClasses = []string{"text-[#F26727]", "font-bold"}

// Highlighter marks the header navigation entry for the current page.
type Highlighter struct {
	activeClasses []string
	defaultPage   string
}

// NewHighlighter builds a highlighter. Empty arguments fall back to the site defaults.
func NewHighlighter(activeClasses []string, defaultPage string) *Highlighter {
	if len(activeClasses) == 0 {
		activeClasses = DefaultActiveClasses
	}
	if defaultPage == "" {
		defaultPage = "index.html"
	}
	return &Highlighter{activeClasses: activeClasses, defaultPage: defaultPage}
}

// Current returns the page name links are compared against.
func (h *Highlighter) Current(filename string) string {
	if filename == "" {
		return h.defaultPage
	}
	return filename
}

// Highlight clears previous markers under root and activates every nav link whose href equals
// the current page exactly. It returns the number of links activated.
func (h *Highlighter) Highlight(root *goquery.Selection, filename string) int {
	current := h.Current(filename)

	links := root.Find(linkSelector)
	links.Filter("[" + markerAttr + "]").Each(func(_ int, link *goquery.Selection) {
		if added := link.AttrOr(markerAttr, ""); added != "" {
			link.RemoveClass(added)
		}
		link.RemoveAttr(markerAttr)
		link.RemoveAttr("aria-current")
	})

	active := 0
	links.Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !IsActive(href, current) {
			return
		}
		var added []string
		for _, class := range h.activeClasses {
			if !link.HasClass(class) {
				added = append(added, class)
			}
		}
		if len(added) > 0 {
			link.AddClass(added...)
		}
		link.SetAttr(markerAttr, strings.Join(added, " "))
		link.SetAttr("aria-current", "page")
		active++
	})
	return active
}

// IsActive reports whether a link targets the current page. Header navigation matches exactly;
// the sidebar uses substring matching instead.
func IsActive(href, current string) bool {
	return href != "" && href == current
}

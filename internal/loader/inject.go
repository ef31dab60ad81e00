package loader

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// AdjustedAttr is stamped on elements whose reference FixPaths already rewrote.
const AdjustedAttr = "data-path-adjusted"

// FixPaths rewrites depth-dependent references inside container for nested pages: images and
// links starting with "./" and PDF links containing "./" are pointed one directory up. It works
// on the raw attribute values and skips stamped elements, so repeated calls never double-prefix.
// It returns the number of attributes rewritten.
func FixPaths(loc Location, container *goquery.Selection) int {
	if !loc.Nested || container == nil || container.Length() == 0 {
		return 0
	}
	rewritten := 0
	rewrite := func(sel *goquery.Selection, attr string, match func(string) bool) {
		sel.Each(func(_ int, el *goquery.Selection) {
			if _, done := el.Attr(AdjustedAttr); done {
				return
			}
			value, ok := el.Attr(attr)
			if !ok || !match(value) {
				return
			}
			el.SetAttr(attr, "../"+strings.Replace(value, "./", "", 1))
			el.SetAttr(AdjustedAttr, "true")
			rewritten++
		})
	}

	leadingDot := func(v string) bool { return strings.HasPrefix(v, "./") }
	rewrite(container.Find(`img[src^="./"]`), "src", leadingDot)
	rewrite(container.Find(`a[href^="./"]`), "href", leadingDot)
	rewrite(container.Find(`a[href$=".pdf"]`), "href", func(v string) bool {
		if strings.HasPrefix(v, "../") || strings.HasPrefix(v, "/") || strings.HasPrefix(v, "http") {
			return false
		}
		return strings.Contains(v, "./")
	})
	return rewritten
}

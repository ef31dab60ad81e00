package sidebar

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Inline style declarations are kept in source order so untouched properties survive a rewrite.

type declaration struct {
	prop  string
	value string
}

func parseStyle(raw string) []declaration {
	var out []declaration
	for _, part := range strings.Split(raw, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		if prop == "" {
			continue
		}
		out = append(out, declaration{prop: prop, value: strings.TrimSpace(value)})
	}
	return out
}

func formatStyle(decls []declaration) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.prop+": "+d.value)
	}
	return strings.Join(parts, "; ")
}

// StyleValue returns the inline value of prop on the first element of sel.
func StyleValue(sel *goquery.Selection, prop string) string {
	raw, ok := sel.First().Attr("style")
	if !ok {
		return ""
	}
	prop = strings.ToLower(prop)
	for _, d := range parseStyle(raw) {
		if d.prop == prop {
			return d.value
		}
	}
	return ""
}

// setStyle sets prop on every element of sel.
func setStyle(sel *goquery.Selection, prop, value string) {
	prop = strings.ToLower(prop)
	sel.Each(func(_ int, s *goquery.Selection) {
		raw, _ := s.Attr("style")
		decls := parseStyle(raw)
		replaced := false
		for i := range decls {
			if decls[i].prop == prop {
				decls[i].value = value
				replaced = true
			}
		}
		if !replaced {
			decls = append(decls, declaration{prop: prop, value: value})
		}
		s.SetAttr("style", formatStyle(decls))
	})
}

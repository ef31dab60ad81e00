package loader

import (
	"net/http"
	"net/url"
	"strings"
)

// Protocols a page may be served under.
const (
	ProtocolFile  = "file"
	ProtocolHTTP  = "http"
	ProtocolHTTPS = "https"
)

// Location is the page context derived from its address. It is computed per request and
// never cached.
type Location struct {
	URL      *url.URL
	Protocol string
	Segments []string
	Nested   bool
	Filename string
}

// Resolve derives the location context of u. A page is nested when its path holds more than
// one non-empty segment.
func Resolve(u *url.URL) Location {
	if u == nil {
		u = &url.URL{Scheme: ProtocolHTTP, Path: "/"}
	}
	protocol := strings.ToLower(u.Scheme)
	switch protocol {
	case ProtocolFile, ProtocolHTTPS:
	default:
		protocol = ProtocolHTTP
	}

	var segments []string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	filename := ""
	if !strings.HasSuffix(u.Path, "/") && len(segments) > 0 {
		filename = segments[len(segments)-1]
	}

	return Location{
		URL:      u,
		Protocol: protocol,
		Segments: segments,
		Nested:   len(segments) > 1,
		Filename: filename,
	}
}

// ResolveRequest derives the location of an incoming request, honouring TLS and
// X-Forwarded-Proto for the protocol.
func ResolveRequest(r *http.Request) Location {
	u := *r.URL
	u.Host = r.Host
	u.Scheme = ProtocolHTTP
	if r.TLS != nil {
		u.Scheme = ProtocolHTTPS
	}
	if proto := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto"))); proto == ProtocolHTTPS || proto == ProtocolHTTP {
		u.Scheme = proto
	}
	return Resolve(&u)
}

// Prefix is "../" for nested pages and "./" otherwise.
func (l Location) Prefix() string {
	if l.Nested {
		return "../"
	}
	return "./"
}

// AdjustPath prepends "../" to p on nested pages unless p is absolute (http or //). It is not
// idempotent: adjusting an adjusted path climbs another level.
func (l Location) AdjustPath(p string) string {
	if l.Nested && !strings.HasPrefix(p, "http") && !strings.HasPrefix(p, "//") {
		return "../" + p
	}
	return p
}

// Dir is the site path of the directory holding the page, always ending in "/".
func (l Location) Dir() string {
	if len(l.Segments) == 0 {
		return "/"
	}
	dirSegments := l.Segments
	if l.Filename != "" {
		dirSegments = l.Segments[:len(l.Segments)-1]
	}
	if len(dirSegments) == 0 {
		return "/"
	}
	return "/" + strings.Join(dirSegments, "/") + "/"
}

// Reference resolves a fragment path against the page into an absolute site path or URL.
func (l Location) Reference(p string) string {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") || strings.HasPrefix(p, "//") {
		return p
	}
	base := &url.URL{Path: l.Dir()}
	ref, err := url.Parse(p)
	if err != nil {
		return p
	}
	return base.ResolveReference(ref).Path
}

package loader

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrMountNotFound is returned when writing to a mount point the page does not have.
var ErrMountNotFound = errors.New("loader: mount point not found")

// Page is a parsed document being assembled. All mutations go through the page lock so each
// mount has a single writer at a time.
type Page struct {
	mu       sync.Mutex
	doc      *goquery.Document
	location Location
	frame    *Frame
}

// NewPage parses r as the document located at loc.
func NewPage(r io.Reader, loc Location) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("loader: parse page: %w", err)
	}
	return &Page{doc: doc, location: loc, frame: NewFrame()}, nil
}

// Location returns the page's location context.
func (p *Page) Location() Location { return p.location }

// Frame returns the render-pass queue of the page.
func (p *Page) Frame() *Frame { return p.frame }

// Do runs fn with exclusive access to the document.
func (p *Page) Do(fn func(doc *goquery.Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.doc)
}

// HasMount reports whether an element with the given id exists.
func (p *Page) HasMount(id string) bool {
	var ok bool
	p.Do(func(doc *goquery.Document) {
		ok = mountSelection(doc, id).Length() > 0
	})
	return ok
}

// SetMount replaces the children of the mount element with the parsed fragment in a single
// mutation.
func (p *Page) SetMount(id, fragment string) error {
	var err error
	p.Do(func(doc *goquery.Document) {
		mount := mountSelection(doc, id)
		if mount.Length() == 0 {
			err = fmt.Errorf("%w: #%s", ErrMountNotFound, id)
			return
		}
		nodes, parseErr := parseFragment(mount.Get(0), fragment)
		if parseErr != nil {
			err = fmt.Errorf("loader: parse fragment for #%s: %w", id, parseErr)
			return
		}
		mount.Empty()
		for _, n := range nodes {
			mount.Get(0).AppendChild(n)
		}
	})
	return err
}

// MountHTML returns the inner HTML of a mount point.
func (p *Page) MountHTML(id string) (string, error) {
	var (
		out string
		err error
	)
	p.Do(func(doc *goquery.Document) {
		mount := mountSelection(doc, id)
		if mount.Length() == 0 {
			err = fmt.Errorf("%w: #%s", ErrMountNotFound, id)
			return
		}
		out, err = mount.Html()
	})
	return out, err
}

// PrependBody inserts markup at the start of <body>.
func (p *Page) PrependBody(markup string) {
	p.Do(func(doc *goquery.Document) {
		doc.Find("body").First().PrependHtml(markup)
	})
}

// Render serialises the whole document.
func (p *Page) Render(w io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.doc.Nodes {
		if err := html.Render(w, n); err != nil {
			return fmt.Errorf("loader: render page: %w", err)
		}
	}
	return nil
}

// String renders the document, returning an empty string on failure.
func (p *Page) String() string {
	var b strings.Builder
	if err := p.Render(&b); err != nil {
		return ""
	}
	return b.String()
}

func mountSelection(doc *goquery.Document, id string) *goquery.Selection {
	return doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("id")
		return v == id
	}).First()
}

func parseFragment(context *html.Node, fragment string) ([]*html.Node, error) {
	if context == nil || context.Type != html.ElementNode {
		context = &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	}
	return html.ParseFragment(strings.NewReader(fragment), context)
}

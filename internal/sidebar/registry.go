package sidebar

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Group maps a filename token to the sidebar section expanded for matching pages.
type Group struct {
	Token   string
	Section string
	// Submenu selects the collapsible list inside Section. Empty means .service-sub-container.
	Submenu string
}

// Registry is an ordered list of groups; the first matching token wins.
type Registry struct {
	mu     sync.RWMutex
	groups []Group
}

// NewRegistry returns a registry holding groups in order.
func NewRegistry(groups ...Group) *Registry {
	r := &Registry{}
	for _, g := range groups {
		r.Register(g)
	}
	return r
}

// DefaultRegistry knows the mould and asbestos groups.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Group{Token: "mould", Section: ".mould-section", Submenu: ".mould-submenu"},
		Group{Token: "asbestos", Section: ".asbestos-section", Submenu: ".asbestos-submenu"},
	)
}

// Register appends g, replacing any group with the same token in place.
func (r *Registry) Register(g Group) {
	if g.Token == "" {
		return
	}
	if g.Section == "" {
		g.Section = "." + g.Token + "-section"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.groups {
		if r.groups[i].Token == g.Token {
			r.groups[i] = g
			return
		}
	}
	r.groups = append(r.groups, g)
}

// Groups returns a copy of the registered groups.
func (r *Registry) Groups() []Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Group, len(r.groups))
	copy(out, r.groups)
	return out
}

// Match returns the first group whose token is a substring of filename.
func (r *Registry) Match(filename string) (Group, bool) {
	for _, g := range r.Groups() {
		if strings.Contains(filename, g.Token) {
			return g, true
		}
	}
	return Group{}, false
}

// Handler reacts to a click on a sidebar trigger.
type Handler func(trigger *goquery.Selection)

// HandlerRegistry binds at most one handler per trigger element.
type HandlerRegistry struct {
	mu       sync.Mutex
	handlers map[*html.Node]Handler
}

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[*html.Node]Handler)}
}

// Bind attaches h to node, first dropping any handler already bound to it. It reports whether
// a previous handler was replaced.
func (r *HandlerRegistry) Bind(node *html.Node, h Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.handlers[node]
	delete(r.handlers, node)
	r.handlers[node] = h
	return replaced
}

// Unbind detaches whatever handler node carries.
func (r *HandlerRegistry) Unbind(node *html.Node) {
	r.mu.Lock()
	delete(r.handlers, node)
	r.mu.Unlock()
}

// Lookup returns the handler bound to node.
func (r *HandlerRegistry) Lookup(node *html.Node) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[node]
	return h, ok
}

// Bound reports the number of triggers with a handler.
func (r *HandlerRegistry) Bound() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

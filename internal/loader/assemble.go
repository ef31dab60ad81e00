package loader

import (
	"context"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jimshazmatremoval.com.au/auburn-web/internal/events"
	"jimshazmatremoval.com.au/auburn-web/internal/nav"
	"jimshazmatremoval.com.au/auburn-web/internal/requestctx"
	"jimshazmatremoval.com.au/auburn-web/internal/sidebar"
	"jimshazmatremoval.com.au/auburn-web/internal/site"
)

// State is a step of the assembly sequence.
type State string

const (
	StateStart                State = "Start"
	StateFetchingHeaderFooter State = "FetchingHeaderFooter"
	StateFetchingSidebar      State = "FetchingSidebar"
	StateSkippingSidebar      State = "SkippingSidebar"
	StateInitializing         State = "Initializing"
	StateDone                 State = "Done"
)

// Subscriber names registered on every assembled page.
const (
	SubscriberNavHighlight   = "nav-highlight"
	SubscriberSidebarRefresh = "sidebar-refresh"
)

// SourceAssembler tags the completion signal published by Assemble itself.
const SourceAssembler = "assembler"

// Report describes one assembly run.
type Report struct {
	States  []State
	Results map[string]Result
	// Sidebar is nil when the page has no sidebar mount.
	Sidebar *sidebar.Controller
	// Bus carries the completion signal; external code may publish on it again.
	Bus *events.Bus
	// Published counts completion signals emitted by Assemble.
	Published int
}

// Reached reports whether the run passed through s.
func (r Report) Reached(s State) bool {
	for _, st := range r.States {
		if st == s {
			return true
		}
	}
	return false
}

// Assembler mounts the shared fragments of a page and initialises its navigation state.
type Assembler struct {
	fetcher   *Fetcher
	manifest  site.Manifest
	groups    *sidebar.Registry
	highlight *nav.Highlighter
}

// NewAssembler builds an assembler from the fetcher and site manifest.
func NewAssembler(fetcher *Fetcher, manifest site.Manifest) *Assembler {
	groups := sidebar.NewRegistry()
	for _, g := range manifest.Sidebar {
		groups.Register(sidebar.Group{Token: g.Token, Section: g.Section, Submenu: g.Submenu})
	}
	return &Assembler{
		fetcher:   fetcher,
		manifest:  manifest,
		groups:    groups,
		highlight: nav.NewHighlighter(manifest.Nav.ActiveClasses, manifest.Nav.DefaultPage),
	}
}

// Assemble runs Start → FetchingHeaderFooter → FetchingSidebar|SkippingSidebar → Initializing →
// Done on page. Fragment failures show in their mounts and never abort the run; the only error
// is a context cancelled before assembly starts.
func (a *Assembler) Assemble(ctx context.Context, page *Page) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	logger := requestctx.Logger(ctx)
	loc := page.Location()

	report := Report{
		Results: make(map[string]Result),
		Bus:     events.NewBus(),
	}
	var resultsMu sync.Mutex
	enter := func(s State) {
		report.States = append(report.States, s)
		logger.Debug("assembly state", zap.String("state", string(s)))
	}

	enter(StateStart)
	if loc.Protocol == ProtocolFile {
		page.PrependBody(FileAdvisoryBanner)
	}
	header, hasHeader := a.present(page, site.FragmentHeader)
	footer, hasFooter := a.present(page, site.FragmentFooter)
	side, hasSidebar := a.present(page, site.FragmentSidebar)

	enter(StateFetchingHeaderFooter)
	var g errgroup.Group
	for _, frag := range []struct {
		desc site.Fragment
		ok   bool
	}{{header, hasHeader}, {footer, hasFooter}} {
		if !frag.ok {
			continue
		}
		desc := frag.desc
		g.Go(func() error {
			res := a.fetcher.Fetch(ctx, page, desc.Mount, loc.AdjustPath(desc.Path))
			resultsMu.Lock()
			report.Results[desc.Name] = res
			resultsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	frame := page.Frame()
	if hasSidebar {
		enter(StateFetchingSidebar)
		report.Results[side.Name] = a.fetcher.Fetch(ctx, page, side.Mount, loc.AdjustPath(side.Path))
		var ctrl *sidebar.Controller
		page.Do(func(doc *goquery.Document) {
			ctrl = sidebar.NewController(doc.Selection, loc.Filename, a.groups)
		})
		report.Sidebar = ctrl
		frame.AfterRender(func() {
			page.Do(func(*goquery.Document) {
				ctrl.Initialize()
				ctrl.HighlightActive()
			})
		})
		frame.Flush()
	} else {
		enter(StateSkippingSidebar)
	}

	enter(StateInitializing)
	page.Do(func(doc *goquery.Document) {
		for _, frag := range []struct {
			desc site.Fragment
			ok   bool
		}{{header, hasHeader}, {footer, hasFooter}} {
			if frag.ok {
				FixPaths(loc, mountSelection(doc, frag.desc.Mount))
			}
		}
	})
	a.subscribe(report.Bus, page, report.Sidebar)
	frame.AfterRender(func() {
		report.Bus.Publish(ctx, events.Signal{Name: events.ComponentsReady, Source: SourceAssembler})
		report.Published++
	})
	frame.Flush()

	enter(StateDone)
	return report, nil
}

// ToggleService dispatches a click on the sidebar trigger named service.
func ToggleService(page *Page, ctrl *sidebar.Controller, service string) bool {
	if ctrl == nil {
		return false
	}
	var clicked bool
	page.Do(func(*goquery.Document) {
		clicked = ctrl.ClickService(service)
	})
	return clicked
}

// subscribe registers the page's idempotent listeners. The sidebar was initialised during
// FetchingSidebar, so the refresh subscriber only reacts to signals re-emitted by others.
func (a *Assembler) subscribe(bus *events.Bus, page *Page, ctrl *sidebar.Controller) {
	filename := page.Location().Filename
	bus.Subscribe(SubscriberNavHighlight, func(ctx context.Context, _ events.Signal) {
		var active int
		page.Do(func(doc *goquery.Document) {
			active = a.highlight.Highlight(doc.Selection, filename)
		})
		requestctx.Logger(ctx).Debug("nav highlighted", zap.Int("active_links", active))
	})
	bus.Subscribe(SubscriberSidebarRefresh, func(_ context.Context, sig events.Signal) {
		if ctrl == nil || sig.Source == SourceAssembler {
			return
		}
		page.Do(func(*goquery.Document) {
			ctrl.Initialize()
			ctrl.HighlightActive()
		})
	})
}

func (a *Assembler) present(page *Page, name string) (site.Fragment, bool) {
	desc, ok := a.manifest.Fragment(name)
	if !ok {
		return site.Fragment{}, false
	}
	return desc, page.HasMount(desc.Mount)
}

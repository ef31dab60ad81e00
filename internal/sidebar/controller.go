package sidebar

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	subContainerSelector = ".service-sub-container"
	sectionSelector      = ".service-section"
	mainIconSelector     = ".service-main i"
	triggerSelector      = ".service-main[data-service]"
	activeClass          = "active-service"

	displayHidden  = "none"
	displayVisible = "block"
	iconCollapsed  = "rotate(0deg)"
	iconExpanded   = "rotate(180deg)"
)

// Controller expands, collapses and highlights the service sidebar of one page.
type Controller struct {
	root     *goquery.Selection
	filename string
	groups   *Registry
	handlers *HandlerRegistry
}

// NewController binds a controller to the document under root for the page named filename.
func NewController(root *goquery.Selection, filename string, groups *Registry) *Controller {
	if groups == nil {
		groups = DefaultRegistry()
	}
	return &Controller{
		root:     root,
		filename: filename,
		groups:   groups,
		handlers: NewHandlerRegistry(),
	}
}

// Handlers exposes the trigger bindings.
func (c *Controller) Handlers() *HandlerRegistry { return c.handlers }

// Initialize collapses every submenu, expands the group matching the current filename and
// binds one toggle handler per trigger. Repeated calls leave exactly one handler per trigger.
func (c *Controller) Initialize() {
	setStyle(c.root.Find(subContainerSelector), "display", displayHidden)
	setStyle(c.root.Find(mainIconSelector), "transform", iconCollapsed)

	if g, ok := c.groups.Match(c.filename); ok {
		section := c.root.Find(g.Section).First()
		submenuSel := g.Submenu
		if submenuSel == "" {
			submenuSel = subContainerSelector
		}
		submenu := section.Find(submenuSel).First()
		if submenu.Length() > 0 {
			setStyle(submenu, "display", displayVisible)
			setStyle(section.Find(mainIconSelector).First(), "transform", iconExpanded)
		}
	}

	c.root.Find(triggerSelector).Each(func(_ int, trigger *goquery.Selection) {
		c.handlers.Bind(trigger.Get(0), c.toggle)
	})
}

// HighlightActive marks the triggers and sub-items whose data-page token appears in the
// filename. An active sub-item forces its section open.
func (c *Controller) HighlightActive() {
	c.root.Find(".service-main, .service-sub").RemoveClass(activeClass)

	c.root.Find(".service-main[data-page]").Each(func(_ int, el *goquery.Selection) {
		if c.pageMatches(el) {
			el.AddClass(activeClass)
		}
	})

	c.root.Find(".service-sub[data-page]").Each(func(_ int, el *goquery.Selection) {
		if !c.pageMatches(el) {
			return
		}
		el.AddClass(activeClass)
		section := el.Closest(sectionSelector)
		if section.Length() == 0 {
			return
		}
		submenu := section.Find(subContainerSelector).First()
		if submenu.Length() > 0 {
			setStyle(submenu, "display", displayVisible)
			setStyle(section.Find(mainIconSelector).First(), "transform", iconExpanded)
		}
	})
}

// Click dispatches the handler bound to trigger. It reports false when none is bound.
func (c *Controller) Click(trigger *goquery.Selection) bool {
	if trigger == nil || trigger.Length() == 0 {
		return false
	}
	h, ok := c.handlers.Lookup(trigger.Get(0))
	if !ok {
		return false
	}
	h(trigger.First())
	return true
}

// ClickService clicks the trigger whose data-service equals service.
func (c *Controller) ClickService(service string) bool {
	service = strings.TrimSpace(service)
	if service == "" {
		return false
	}
	trigger := c.root.Find(triggerSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("data-service")
		return v == service
	}).First()
	return c.Click(trigger)
}

func (c *Controller) toggle(trigger *goquery.Selection) {
	section := trigger.Closest(sectionSelector)
	submenu := section.Find(subContainerSelector).First()
	if submenu.Length() == 0 {
		return
	}
	icon := trigger.Find("i").First()
	if display := StyleValue(submenu, "display"); display == displayHidden || display == "" {
		setStyle(submenu, "display", displayVisible)
		setStyle(icon, "transform", iconExpanded)
		return
	}
	setStyle(submenu, "display", displayHidden)
	setStyle(icon, "transform", iconCollapsed)
}

func (c *Controller) pageMatches(el *goquery.Selection) bool {
	token, _ := el.Attr("data-page")
	return token != "" && strings.Contains(c.filename, token)
}

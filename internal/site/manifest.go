package site

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fragment names understood by the assembler.
const (
	FragmentHeader  = "header"
	FragmentFooter  = "footer"
	FragmentSidebar = "sidebar"
)

// Fragment describes a shared snippet and the element id it is mounted into.
type Fragment struct {
	Name  string `yaml:"name"`
	Path  string `yaml:"path"`
	Mount string `yaml:"mount"`
}

// SidebarGroup maps a filename token to the sidebar section it expands.
type SidebarGroup struct {
	Token   string `yaml:"token"`
	Section string `yaml:"section"`
	Submenu string `yaml:"submenu"`
}

// Nav configures header navigation highlighting.
type Nav struct {
	ActiveClasses []string `yaml:"active_classes"`
	DefaultPage   string   `yaml:"default_page"`
}

// Pages names the documents the server redirects to.
type Pages struct {
	Home     string `yaml:"home"`
	Form     string `yaml:"form"`
	ThankYou string `yaml:"thank_you"`
}

// Manifest is the parsed site.yaml.
type Manifest struct {
	Fragments []Fragment     `yaml:"fragments"`
	Sidebar   []SidebarGroup `yaml:"sidebar"`
	Nav       Nav            `yaml:"nav"`
	Pages     Pages          `yaml:"pages"`
}

// Default mirrors the layout of the live site.
func Default() Manifest {
	return Manifest{
		Fragments: []Fragment{
			{Name: FragmentHeader, Path: "components/header.html", Mount: "header"},
			{Name: FragmentFooter, Path: "components/footer.html", Mount: "footer"},
			{Name: FragmentSidebar, Path: "components/service-sidebar.html", Mount: "service-sidebar"},
		},
		Sidebar: []SidebarGroup{
			{Token: "mould", Section: ".mould-section", Submenu: ".mould-submenu"},
			{Token: "asbestos", Section: ".asbestos-section", Submenu: ".asbestos-submenu"},
		},
		Nav: Nav{
			ActiveClasses: []string{"text-[#F26727]", "font-bold"},
			DefaultPage:   "index.html",
		},
		Pages: Pages{
			Home:     "index.html",
			Form:     "quote.html",
			ThankYou: "thank-you.html",
		},
	}
}

// Load reads the manifest at path. A missing file yields Default; fields left empty fall back
// to their defaults.
func Load(path string) (Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("site: read manifest: %w", err)
	}
	return Parse(raw)
}

// Parse decodes manifest YAML and fills defaults.
func Parse(raw []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("site: parse manifest: %w", err)
	}
	m.applyDefaults()
	if err := m.validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Fragment returns the descriptor registered under name.
func (m Manifest) Fragment(name string) (Fragment, bool) {
	for _, f := range m.Fragments {
		if f.Name == name {
			return f, true
		}
	}
	return Fragment{}, false
}

func (m *Manifest) applyDefaults() {
	def := Default()
	if len(m.Fragments) == 0 {
		m.Fragments = def.Fragments
	} else {
		for _, want := range def.Fragments {
			if _, ok := m.Fragment(want.Name); !ok {
				m.Fragments = append(m.Fragments, want)
			}
		}
	}
	for i := range m.Sidebar {
		if m.Sidebar[i].Section == "" && m.Sidebar[i].Token != "" {
			m.Sidebar[i].Section = "." + m.Sidebar[i].Token + "-section"
		}
	}
	if m.Sidebar == nil {
		m.Sidebar = def.Sidebar
	}
	if len(m.Nav.ActiveClasses) == 0 {
		m.Nav.ActiveClasses = def.Nav.ActiveClasses
	}
	if m.Nav.DefaultPage == "" {
		m.Nav.DefaultPage = def.Nav.DefaultPage
	}
	if m.Pages.Home == "" {
		m.Pages.Home = def.Pages.Home
	}
	if m.Pages.Form == "" {
		m.Pages.Form = def.Pages.Form
	}
	if m.Pages.ThankYou == "" {
		m.Pages.ThankYou = def.Pages.ThankYou
	}
}

func (m Manifest) validate() error {
	seen := make(map[string]bool, len(m.Fragments))
	for _, f := range m.Fragments {
		switch {
		case f.Name == "":
			return errors.New("site: fragment without name")
		case f.Path == "" || f.Mount == "":
			return fmt.Errorf("site: fragment %q needs path and mount", f.Name)
		case seen[f.Name]:
			return fmt.Errorf("site: duplicate fragment %q", f.Name)
		}
		seen[f.Name] = true
	}
	for _, g := range m.Sidebar {
		if g.Token == "" {
			return errors.New("site: sidebar group without token")
		}
	}
	return nil
}

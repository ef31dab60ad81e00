package content

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed templates/shell.html.tmpl
var templateFS embed.FS

// ErrNotFound is returned when no markdown source exists for a page.
var ErrNotFound = errors.New("content: page not found")

// Page is a markdown page ready to be wrapped in the site shell.
type Page struct {
	Slug        string
	Title       string
	Description string
	Sidebar     bool
	Body        template.HTML
}

type frontMatter struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Sidebar     bool   `yaml:"sidebar"`
}

// Mounts names the mount-point ids the shell provides.
type Mounts struct {
	Header  string
	Footer  string
	Sidebar string
}

// Renderer turns markdown sources into shell documents the assembler can complete.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	shell  *template.Template
	mounts Mounts
	lang   language.Tag
}

// NewRenderer builds a renderer whose shell exposes mounts.
func NewRenderer(mounts Mounts) (*Renderer, error) {
	shell, err := template.ParseFS(templateFS, "templates/shell.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("content: parse shell: %w", err)
	}
	if mounts.Header == "" {
		mounts.Header = "header"
	}
	if mounts.Footer == "" {
		mounts.Footer = "footer"
	}
	if mounts.Sidebar == "" {
		mounts.Sidebar = "service-sidebar"
	}
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		policy: newContentPolicy(),
		shell:  shell,
		mounts: mounts,
		lang:   language.English,
	}, nil
}

func newContentPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.AllowAttrs("class").OnElements("figure", "figcaption", "p", "span", "div")
	policy.AllowAttrs("loading").OnElements("img")
	policy.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// Parse reads front matter and renders the markdown body of slug.
func (r *Renderer) Parse(slug string, raw []byte) (Page, error) {
	fm, body := SplitFrontMatter(string(raw))
	front := frontMatter{}
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
			return Page{}, fmt.Errorf("content: parse front matter %s: %w", slug, err)
		}
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(body), &buf); err != nil {
		return Page{}, fmt.Errorf("content: render %s: %w", slug, err)
	}

	page := Page{
		Slug:        slug,
		Title:       strings.TrimSpace(front.Title),
		Description: strings.TrimSpace(front.Description),
		Sidebar:     front.Sidebar,
		Body:        template.HTML(r.policy.SanitizeBytes(buf.Bytes())),
	}
	if page.Title == "" {
		page.Title = r.TitleFromSlug(slug)
	}
	return page, nil
}

// Render writes page wrapped in the shell. prefix is "./" or "../" depending on page depth.
func (r *Renderer) Render(w io.Writer, page Page, prefix string) error {
	data := struct {
		Page   Page
		Mounts Mounts
		Prefix string
	}{page, r.mounts, prefix}
	if err := r.shell.ExecuteTemplate(w, "shell.html.tmpl", data); err != nil {
		return fmt.Errorf("content: render shell %s: %w", page.Slug, err)
	}
	return nil
}

// Load reads name (a .md file) from fsys and renders it into a shell document.
func (r *Renderer) Load(fsys fs.FS, name, prefix string) ([]byte, error) {
	raw, err := fs.ReadFile(fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("content: read %s: %w", name, err)
	}
	slug := strings.TrimSuffix(path.Base(name), path.Ext(name))
	page, err := r.Parse(slug, raw)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := r.Render(&out, page, prefix); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// TitleFromSlug turns "mould-removal" into "Mould Removal".
func (r *Renderer) TitleFromSlug(slug string) string {
	s := strings.TrimSpace(slug)
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	// Casers hold state, so each call gets its own.
	return cases.Title(r.lang).String(strings.Join(strings.Fields(s), " "))
}

// SplitFrontMatter separates a leading "---" delimited YAML block from the body.
func SplitFrontMatter(input string) (string, string) {
	input = strings.TrimLeft(input, "\ufeff")
	lines := strings.Split(input, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return "", input
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			fm := strings.Join(lines[1:i], "\n")
			body := strings.Join(lines[i+1:], "\n")
			return fm, strings.TrimLeft(body, "\n\r")
		}
	}
	return "", input
}

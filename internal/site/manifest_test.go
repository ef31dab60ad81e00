package site

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "site.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), m)

	header, ok := m.Fragment(FragmentHeader)
	require.True(t, ok)
	require.Equal(t, "components/header.html", header.Path)
	require.Equal(t, "header", header.Mount)
}

func TestParseMergesDefaults(t *testing.T) {
	raw := []byte(`
fragments:
  - name: header
    path: partials/top.html
    mount: site-header
sidebar:
  - token: meth
  - token: mould
    section: .mould-section
    submenu: .mould-submenu
pages:
  form: get-a-quote.html
`)
	m, err := Parse(raw)
	require.NoError(t, err)

	header, _ := m.Fragment(FragmentHeader)
	require.Equal(t, "site-header", header.Mount)
	footer, ok := m.Fragment(FragmentFooter)
	require.True(t, ok)
	require.Equal(t, "components/footer.html", footer.Path)

	require.Len(t, m.Sidebar, 2)
	require.Equal(t, ".meth-section", m.Sidebar[0].Section)
	require.Equal(t, []string{"text-[#F26727]", "font-bold"}, m.Nav.ActiveClasses)
	require.Equal(t, "get-a-quote.html", m.Pages.Form)
	require.Equal(t, "thank-you.html", m.Pages.ThankYou)
}

func TestParseRejectsInvalidManifest(t *testing.T) {
	_, err := Parse([]byte("fragments:\n  - name: header\n"))
	require.Error(t, err)

	_, err = Parse([]byte("fragments: [\n"))
	require.Error(t, err)

	_, err = Parse([]byte("sidebar:\n  - section: .x\n"))
	require.Error(t, err)
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nav:\n  default_page: home.html\n"), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "home.html", m.Nav.DefaultPage)
}

package probe

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referencias-work/curator-cli/internal/heuristics"
)

func TestNormalizeBase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com", "https://example.com/"},
		{"https://example.com/", "https://example.com/"},
		{"https://example.com///", "https://example.com/"},
		{"https://example.com/studio/?utm=x#top", "https://example.com/studio"},
		{"  http://Example.com/a/b//  ", "http://Example.com/a/b"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeBase(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeBase_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "example.com", "ftp://example.com", "http://", "::nope"} {
		_, err := NormalizeBase(in)
		assert.True(t, eris.Is(err, ErrInvalidURL), in)
	}
}

func TestLocationPages(t *testing.T) {
	p := New(nil)

	pages, err := p.LocationPages("https://example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/contact",
		"https://example.com/contato",
		"https://example.com/about",
		"https://example.com/sobre",
		"https://example.com/impressum",
		"https://example.com/studio",
		"https://example.com/work",
	}, pages)

	pages, err = p.LocationPages("https://example.com/en/?lang=en")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/en", pages[0])
	assert.Equal(t, "https://example.com", pages[1])
	assert.Equal(t, "https://example.com/contact", pages[2])
	assert.Len(t, pages, 9)

	pages, err = p.LocationPages("https://example.com/about")
	require.NoError(t, err)
	assert.Len(t, pages, 8, "the /about base is not probed twice")
}

func TestProjectPages(t *testing.T) {
	pages, err := New(nil).ProjectPages("https://example.com/en/home")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/works", pages[0])
	assert.Equal(t, "https://example.com/projects/all", pages[len(pages)-1])
	assert.Len(t, pages, 12)
}

func TestDeepPages(t *testing.T) {
	pages, err := New(nil).DeepPages("https://example.com/studio/")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/studio", pages[0])
	assert.Equal(t, "https://example.com/studio/projects", pages[1])
	assert.Contains(t, pages, "https://example.com/studio/portfólio")
	assert.Len(t, pages, 18)
}

func TestWPMediaPages(t *testing.T) {
	pages, err := New(nil).WPMediaPages("https://example.com/?x=1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/wp-json/wp/v2/media?per_page=50&page=1",
		"https://example.com/wp-json/wp/v2/media?per_page=50&page=2",
	}, pages)
}

func TestCustomTables(t *testing.T) {
	tbl := heuristics.Default()
	tbl.LocationPaths = []string{"/kontakt", "/kontakt/"}
	pages, err := New(tbl).LocationPages("https://example.de")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.de/", "https://example.de/kontakt"}, pages)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "home", Label("https://example.com/", "https://example.com"))
	assert.Equal(t, "/works", Label("https://example.com/", "https://example.com/works"))
	assert.Equal(t, "home", Label("https://example.com/en", "https://example.com/en/"))
}

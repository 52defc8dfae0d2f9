package heuristics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_CountryForCode(t *testing.T) {
	tbl := Default()

	tests := []struct {
		code    string
		country string
		ok      bool
	}{
		{"TX", "Estados Unidos", true},
		{"tx", "Estados Unidos", true},
		{"WA", "Estados Unidos", true}, // US listed first
		{"NSW", "Austrália", true},
		{"QC", "Canadá", true},
		{"NT", "Austrália", true},
		{"ZZ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, ok := tbl.CountryForCode(tt.code)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.country, got)
		})
	}
}

func TestDefault_IsFreshCopy(t *testing.T) {
	a := Default()
	a.GarbageTokens[0] = "changed"
	a.Subdivisions[0].Codes[0] = "XX"

	b := Default()
	assert.Equal(t, "logo", b.GarbageTokens[0])
	assert.Equal(t, "AL", b.Subdivisions[0].Codes[0])
}

func TestLoad_EmptyPath(t *testing.T) {
	tbl, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), tbl)
}

func TestLoad_OverlaysNonEmptyLists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heuristics.yaml")
	content := `heuristics:
  garbage_tokens: [Logo, Badge]
  share_tokens: [" Promo-Card "]
  project_paths: [/cases]
  subdivisions:
    - country: Brasil
      codes: [sp, rj]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tbl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"logo", "badge"}, tbl.GarbageTokens)
	assert.Equal(t, []string{"promo-card"}, tbl.ShareTokens)
	assert.Equal(t, []string{"/cases"}, tbl.ProjectPaths)
	assert.Equal(t, Default().DeepPaths, tbl.DeepPaths)

	country, ok := tbl.CountryForCode("SP")
	assert.True(t, ok)
	assert.Equal(t, "Brasil", country)
	_, ok = tbl.CountryForCode("TX")
	assert.False(t, ok)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "heuristics: read")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("heuristics: [unclosed"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "heuristics: parse")

	rel := filepath.Join(t.TempDir(), "rel.yaml")
	require.NoError(t, os.WriteFile(rel, []byte("heuristics:\n  deep_paths: [projects]\n"), 0o644))
	_, err = Load(rel)
	assert.ErrorContains(t, err, "must start with /")
}

func TestContainsAny(t *testing.T) {
	assert.True(t, ContainsAny("/img/site-logo.png", []string{"logo"}))
	assert.False(t, ContainsAny("/img/hero.png", []string{"logo", ""}))
	assert.False(t, ContainsAny("anything", nil))
}

package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const forestJSON = `{
	"name": "forest",
	"features": ["berries", "water"],
	"map": [
		[1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1],
		[1,5,0,0,6,0,0,2,2,0,0,9,0,0,0,0,0,0,0,0,0,0,0,0,0,0,11,1]
	]
}`

// writeCatalog lays out a catalog file plus map files in a temp dir.
func writeCatalog(t *testing.T, catalog string, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o600))
	return path
}

func TestLoadAndGet(t *testing.T) {
	path := writeCatalog(t, `
[Maps]
version = "0.1.0"
maps = ["forest", "cave"]

[forest]
path = "maps/forest.json"
version = "0.1.0"
author = ["Ash", "Misty"]

[cave]
path = "maps/cave.json"
version = "0.1.0"
format = "JSON"
author = "Brock"
`, map[string]string{
		"maps/forest.json": forestJSON,
		"maps/cave.json":   `{"name":"cave","features":"none","map":[[1,2,3]]}`,
	})

	c, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "0.1.0", c.Version().String())
	assert.Equal(t, []string{"cave", "forest"}, c.AvailableMaps())

	author, ok := c.Author("forest")
	assert.True(t, ok)
	assert.Equal(t, "Ash, Misty", author)

	author, ok = c.Author("cave")
	assert.True(t, ok)
	assert.Equal(t, "Brock", author)

	m, err := c.Get("forest")
	require.NoError(t, err)
	assert.Equal(t, "forest", m.Name)
	assert.Equal(t, "28x2", m.Size())
	assert.True(t, m.HasFeature("water"))
	assert.False(t, m.HasFeature("lava"))
	assert.Equal(t, "berries, water", m.FeatureList())
	assert.Equal(t, Start, m.Grid[1][1])
	assert.Equal(t, Teleport, m.Grid[1][26])

	cave, err := c.Get("cave")
	require.NoError(t, err)
	assert.Nil(t, cave.Features)
	assert.Equal(t, Row{1, 2, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, cave.Grid[0])
}

func TestRenderPayload(t *testing.T) {
	path := writeCatalog(t, `
[Maps]
version = "0.1.0"
maps = ["forest"]

[forest]
path = "forest.json"
version = "0.1.0"
`, map[string]string{"forest.json": forestJSON})

	c, err := Load(path, nil)
	require.NoError(t, err)

	payload, err := c.Render("forest")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(payload, `{"name":"forest",`), payload)

	var decoded struct {
		Name     string   `json:"name"`
		Features []string `json:"features"`
		Map      [][]int  `json:"map"`
	}
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.Len(t, decoded.Map, 2)
	assert.Len(t, decoded.Map[0], Width)
	assert.Equal(t, []string{"berries", "water"}, decoded.Features)
}

func TestGetUnknownMap(t *testing.T) {
	c, err := Parse([]byte(`
[Maps]
version = "0.1.0"
maps = []
`), "", nil)
	require.NoError(t, err)

	_, err = c.Get("nowhere")
	assert.ErrorIs(t, err, ErrMapNotFound)

	_, ok := c.Author("nowhere")
	assert.False(t, ok)
}

func TestGetMissingFile(t *testing.T) {
	c, err := Parse([]byte(`
[Maps]
version = "0.1.0"
maps = ["ghost"]

[ghost]
path = "does-not-exist.json"
version = "0.1.0"
`), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, c.AvailableMaps())

	_, err = c.Render("ghost")
	assert.Error(t, err)
}

func TestParseRequiresHeader(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{name: "no Maps table", toml: `title = "x"`},
		{name: "no version", toml: "[Maps]\nmaps = []\n"},
		{name: "no maps list", toml: "[Maps]\nversion = \"0.1.0\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.toml), "", nil)
			assert.ErrorIs(t, err, ErrFieldMissing)
		})
	}
}

func TestParseSkipsInvalidEntries(t *testing.T) {
	c, err := Parse([]byte(`
[Maps]
version = "0.1.0"
maps = ["nopath", "badformat", "undeclared", "ok", 7]

[nopath]
version = "0.1.0"

[badformat]
path = "x.yaml"
version = "0.1.0"
format = "YAML"

[ok]
path = "ok.json"
version = "0.1.0"
author = ["a", 3]
`), "", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"ok"}, c.AvailableMaps())
	_, ok := c.Author("ok")
	assert.False(t, ok, "mixed author array yields no author")
}

func TestFutureCatalogVersionLoadsNothing(t *testing.T) {
	c, err := Parse([]byte(`
[Maps]
version = "99.99.99"
maps = ["forest"]

[forest]
path = "forest.json"
version = "0.1.0"
`), "", nil)
	require.NoError(t, err)
	assert.Empty(t, c.AvailableMaps())
}

func TestMapFileValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "no name", content: `{"map":[]}`},
		{name: "no grid", content: `{"name":"m"}`},
		{name: "row not array", content: `{"name":"m","map":[1]}`},
		{name: "feature not string", content: `{"name":"m","features":[1],"map":[]}`},
		{name: "not json", content: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCatalog(t, `
[Maps]
version = "0.1.0"
maps = ["m"]

[m]
path = "m.json"
version = "0.1.0"
`, map[string]string{"m.json": tt.content})

			c, err := Load(path, nil)
			require.NoError(t, err)
			_, err = c.Get("m")
			assert.Error(t, err)
		})
	}
}

func TestGridNormalisation(t *testing.T) {
	long := make([]string, Width+5)
	for i := range long {
		long[i] = "2"
	}
	content := `{"name":"m","map":[[` + strings.Join(long, ",") + `],[0,"x",300,-1]]}`

	path := writeCatalog(t, `
[Maps]
version = "0.1.0"
maps = ["m"]

[m]
path = "m.json"
version = "0.1.0"
`, map[string]string{"m.json": content})

	c, err := Load(path, nil)
	require.NoError(t, err)
	m, err := c.Get("m")
	require.NoError(t, err)

	for _, cell := range m.Grid[0] {
		assert.Equal(t, Water, cell)
	}
	assert.Equal(t, Empty, m.Grid[1][0])
	assert.Equal(t, Solid, m.Grid[1][1], "non-numeric cell becomes solid")
	assert.Equal(t, Solid, m.Grid[1][2], "out of range cell becomes solid")
	assert.Equal(t, Solid, m.Grid[1][3])
	assert.Equal(t, Solid, m.Grid[1][Width-1])
}

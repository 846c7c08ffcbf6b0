package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/pokeescape/pokeescape-server/internal/version"
)

var (
	// ErrMapNotFound is returned for names the catalog does not list.
	ErrMapNotFound = errors.New("map not found")
	// ErrFieldMissing is returned when a required field is absent or has the wrong type.
	ErrFieldMissing = errors.New("field missing")
	// ErrFormatNotSupported is returned for map formats other than JSON.
	ErrFormatNotSupported = errors.New("map format not supported")
)

// maxCatalogVersion is the first catalog version this loader does not understand.
var maxCatalogVersion = version.MustParse("99.99.99")

// Format is the on-disk encoding of a map file.
type Format string

const FormatJSON Format = "json"

type entry struct {
	name    string
	path    string
	version version.Version
	format  Format
	authors []string
}

// Catalog is the read-only set of maps available to clients. It is built
// once at startup and safe for concurrent use.
type Catalog struct {
	version version.Version
	maps    map[string]entry
	log     *zerolog.Logger
}

// Load reads the TOML catalog at path. Map paths inside it are resolved
// relative to the catalog's directory.
func Load(path string, logger *zerolog.Logger) (*Catalog, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	logger.Info().Str("path", path).Msg("loading maps")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, filepath.Dir(path), logger)
}

// Parse builds a catalog from TOML data.
func Parse(data []byte, baseDir string, logger *zerolog.Logger) (*Catalog, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	header, ok := doc["Maps"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: Maps", ErrFieldMissing)
	}
	rawVersion, ok := header["version"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: Maps.version", ErrFieldMissing)
	}
	catVersion, err := version.Parse(rawVersion)
	if err != nil {
		return nil, fmt.Errorf("catalog version: %w", err)
	}

	c := &Catalog{
		version: catVersion,
		maps:    make(map[string]entry),
		log:     logger,
	}
	if !catVersion.Less(maxCatalogVersion) {
		logger.Warn().Str("version", catVersion.String()).Msg("unsupported catalog version, no maps loaded")
		return c, nil
	}

	names, ok := header["maps"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: Maps.maps", ErrFieldMissing)
	}

	for _, raw := range names {
		name, ok := raw.(string)
		if !ok {
			logger.Warn().Interface("value", raw).Msg("map name is not a string")
			continue
		}
		table, ok := doc[name].(map[string]any)
		if !ok {
			logger.Warn().Str("map", name).Msg("map not found in catalog")
			continue
		}
		e, err := parseEntry(name, table, baseDir)
		if err != nil {
			logger.Warn().Err(err).Str("map", name).Msg("skipping map")
			continue
		}
		logger.Debug().Str("map", name).Str("version", e.version.String()).Msg("map registered")
		c.maps[name] = e
	}

	return c, nil
}

func parseEntry(name string, table map[string]any, baseDir string) (entry, error) {
	path, ok := table["path"].(string)
	if !ok {
		return entry{}, fmt.Errorf("%w: %s.path", ErrFieldMissing, name)
	}
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	rawVersion, ok := table["version"].(string)
	if !ok {
		return entry{}, fmt.Errorf("%w: %s.version", ErrFieldMissing, name)
	}
	v, err := version.Parse(rawVersion)
	if err != nil {
		return entry{}, fmt.Errorf("%s.version: %w", name, err)
	}

	format := FormatJSON
	if raw, ok := table["format"].(string); ok {
		format = Format(strings.ToLower(raw))
	}
	if format != FormatJSON {
		return entry{}, fmt.Errorf("%w: %s", ErrFormatNotSupported, format)
	}

	return entry{
		name:    name,
		path:    path,
		version: v,
		format:  format,
		authors: parseAuthors(table["author"]),
	}, nil
}

// parseAuthors accepts a string or an array of strings. Anything else, or an
// array holding a non-string, yields no authors.
func parseAuthors(raw any) []string {
	switch a := raw.(type) {
	case string:
		return []string{a}
	case []any:
		out := make([]string, 0, len(a))
		for _, v := range a {
			s, ok := v.(string)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	default:
		return nil
	}
}

// Version returns the catalog's own version.
func (c *Catalog) Version() version.Version {
	return c.version
}

// AvailableMaps returns the sorted names of all loadable maps.
func (c *Catalog) AvailableMaps() []string {
	names := make([]string, 0, len(c.maps))
	for name := range c.maps {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Author returns the map's authors joined by ", ".
func (c *Catalog) Author(name string) (string, bool) {
	e, ok := c.maps[name]
	if !ok || len(e.authors) == 0 {
		return "", false
	}
	return strings.Join(e.authors, ", "), true
}

// Get loads the named map from disk. Maps are read on every call so edits to
// map files are picked up without a restart.
func (c *Catalog) Get(name string) (*Map, error) {
	e, ok := c.maps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMapNotFound, name)
	}
	return c.load(e)
}

// Render loads the named map and returns its JSON payload.
func (c *Catalog) Render(name string) (string, error) {
	m, err := c.Get(name)
	if err != nil {
		return "", err
	}
	return m.Render()
}

func (c *Catalog) load(e entry) (*Map, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, fmt.Errorf("read map %s: %w", e.name, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var content map[string]any
	if err := dec.Decode(&content); err != nil {
		return nil, fmt.Errorf("parse map %s: %w", e.name, err)
	}

	name, ok := content["name"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: name", ErrFieldMissing)
	}
	if name != e.name {
		c.log.Warn().Str("map", e.name).Str("file_name", name).Msg("map name differs from catalog name")
	}

	features, err := parseFeatures(content["features"])
	if err != nil {
		return nil, err
	}

	grid, err := c.parseGrid(e.name, content["map"])
	if err != nil {
		return nil, err
	}

	m := &Map{Name: name, Features: features, Grid: grid}
	c.log.Debug().Str("map", m.Name).Str("size", m.Size()).Msg("map loaded")
	return m, nil
}

func parseFeatures(raw any) ([]string, error) {
	var features []string
	switch f := raw.(type) {
	case []any:
		features = make([]string, 0, len(f))
		for _, v := range f {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: features is not string", ErrFieldMissing)
			}
			features = append(features, s)
		}
	case string:
		features = []string{f}
	}
	if len(features) == 1 && features[0] == "none" {
		return nil, nil
	}
	return features, nil
}

func (c *Catalog) parseGrid(name string, raw any) ([]Row, error) {
	rows, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: map", ErrFieldMissing)
	}

	grid := make([]Row, 0, len(rows))
	warned := false
	for _, r := range rows {
		cells, ok := r.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: map", ErrFieldMissing)
		}
		if !warned && len(cells) != Width {
			c.log.Warn().Str("map", name).Int("columns", len(cells)).Int("width", Width).Msg("map row width mismatch")
			warned = true
		}

		var row Row
		for i := range Width {
			row[i] = Solid
			if i >= len(cells) {
				continue
			}
			if n, ok := cells[i].(json.Number); ok {
				if v, err := n.Int64(); err == nil && v >= 0 && v <= 255 {
					row[i] = uint8(v)
				}
			}
		}
		grid = append(grid, row)
	}
	return grid, nil
}

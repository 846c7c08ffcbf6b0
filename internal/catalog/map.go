package catalog

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Width is the fixed number of columns of every map row. Shorter rows are
// padded with Solid, longer rows are cropped.
const Width = 28

// Tile values used in map grids.
const (
	Empty          uint8 = 0
	Solid          uint8 = 1
	Water          uint8 = 2
	Trap           uint8 = 3
	Platform       uint8 = 4
	Start          uint8 = 5
	BerryEnergy    uint8 = 6
	BerryHP        uint8 = 7
	BerryXP        uint8 = 8
	Enemy          uint8 = 9
	EnemyFast      uint8 = 10
	Teleport       uint8 = 11
	MovingPlatform uint8 = 12
)

// Row is one line of a map grid.
type Row [Width]uint8

// Map is a loaded map ready to be sent to a client.
type Map struct {
	Name     string   `json:"name"`
	Features []string `json:"features"`
	Grid     []Row    `json:"map"`
}

// Size reports the grid dimensions as "WIDTHxHEIGHT".
func (m *Map) Size() string {
	return fmt.Sprintf("%dx%d", Width, len(m.Grid))
}

// HasFeature reports whether the map declares feature.
func (m *Map) HasFeature(feature string) bool {
	return slices.Contains(m.Features, feature)
}

// FeatureList joins the features with ", ".
func (m *Map) FeatureList() string {
	return strings.Join(m.Features, ", ")
}

// Render returns the JSON payload sent after "map " on the wire.
func (m *Map) Render() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode map %s: %w", m.Name, err)
	}
	return string(data), nil
}

// String renders the map, falling back to an error object.
func (m *Map) String() string {
	s, err := m.Render()
	if err != nil {
		data, _ := json.Marshal(map[string]any{"status": 100, "err": err.Error()})
		return string(data)
	}
	return s
}

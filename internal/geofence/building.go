package geofence

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// DefaultRadiusMeters applies when a building omits its own radius.
const DefaultRadiusMeters = 150

// NormalizeCode reduces a raw building code to its letters, uppercased.
// "itb 2" and "ITB" both resolve to "ITB".
func NormalizeCode(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Building is one geofenced campus location.
type Building struct {
	Code         string  `json:"code"`
	Name         string  `json:"name,omitempty"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	RadiusMeters float64 `json:"radius_m,omitempty"`
}

// EffectiveRadius returns the configured radius or the default.
func (b Building) EffectiveRadius() float64 {
	if b.RadiusMeters > 0 {
		return b.RadiusMeters
	}
	return DefaultRadiusMeters
}

// Directory resolves normalized building codes to coordinates.
type Directory struct {
	byCode map[string]Building
}

// NewDirectory indexes buildings by normalized code.
func NewDirectory(buildings []Building) *Directory {
	byCode := make(map[string]Building, len(buildings))
	for _, b := range buildings {
		byCode[NormalizeCode(b.Code)] = b
	}
	return &Directory{byCode: byCode}
}

// LoadDirectory reads a JSON array of buildings from disk.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read buildings file: %w", err)
	}
	var buildings []Building
	if err := json.Unmarshal(data, &buildings); err != nil {
		return nil, fmt.Errorf("parse buildings file: %w", err)
	}
	return NewDirectory(buildings), nil
}

// Lookup resolves a raw code. ok is false for unknown buildings.
func (d *Directory) Lookup(code string) (Building, bool) {
	b, ok := d.byCode[NormalizeCode(code)]
	return b, ok
}

// Len reports how many buildings are known.
func (d *Directory) Len() int {
	return len(d.byCode)
}

package domain

import "time"

// Coordinates is a WGS84 point in degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Valid reports whether the point is inside latitude/longitude bounds.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// City is the canonical place entity. ID is the external catalog
// identifier (a Wikidata Q-id for synchronized records) and is never
// generated locally for sync-sourced rows.
type City struct {
	ID       string
	Name     string            // primary display name (English when available)
	Names    map[string]string // language code -> display name
	Coords   Coordinates
	Modified time.Time // source-provided, diagnostics only
}

// AllNames returns every known display name, primary first.
func (c City) AllNames() []string {
	out := make([]string, 0, len(c.Names)+1)
	if c.Name != "" {
		out = append(out, c.Name)
	}
	for _, n := range c.Names {
		if n != c.Name {
			out = append(out, n)
		}
	}
	return out
}

// ValidCity checks the invariants enforced at every write boundary:
// non-empty id and name, in-range coordinates. Records failing this are
// dropped during parsing and rejected on the manual CRUD path.
func ValidCity(c City) bool {
	return c.ID != "" && c.Name != "" && c.Coords.Valid()
}

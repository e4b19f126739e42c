package wikidata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"citydistance/internal/domain"
)

// sparqlResults mirrors the application/sparql-results+json envelope.
type sparqlResults struct {
	Results struct {
		Bindings []map[string]sparqlValue `json:"bindings"`
	} `json:"results"`
}

type sparqlValue struct {
	Value string `json:"value"`
}

// parseResults converts bindings into cities, dropping any row that misses a
// required field or carries out-of-range coordinates. Returns the parsed
// cities and the number of dropped rows. A body that is not a valid envelope
// at all is an error, not an empty result.
func parseResults(raw []byte, lang string) ([]domain.City, int, error) {
	var env sparqlResults
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, fmt.Errorf("wikidata: malformed sparql envelope: %w", err)
	}

	var cities []domain.City
	skipped := 0
	for _, row := range env.Results.Bindings {
		c, ok := parseRow(row, lang)
		if !ok {
			skipped++
			continue
		}
		cities = append(cities, c)
	}
	return cities, skipped, nil
}

func parseRow(row map[string]sparqlValue, lang string) (domain.City, bool) {
	cityURI, ok := row["city"]
	if !ok {
		return domain.City{}, false
	}
	label, ok := row["label"]
	if !ok || label.Value == "" {
		return domain.City{}, false
	}
	lat, ok := parseFloat(row, "lat")
	if !ok {
		return domain.City{}, false
	}
	lon, ok := parseFloat(row, "lon")
	if !ok {
		return domain.City{}, false
	}

	// entity URI -> Q-id
	id := cityURI.Value
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		id = id[i+1:]
	}

	c := domain.City{
		ID:     id,
		Name:   label.Value,
		Names:  map[string]string{lang: label.Value},
		Coords: domain.Coordinates{Lat: lat, Lon: lon},
	}
	if m, ok := row["modified"]; ok {
		if t, err := time.Parse(time.RFC3339, m.Value); err == nil {
			c.Modified = t
		}
	}
	if !domain.ValidCity(c) {
		return domain.City{}, false
	}
	return c, true
}

func parseFloat(row map[string]sparqlValue, key string) (float64, bool) {
	v, ok := row[key]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.Value), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

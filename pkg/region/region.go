// Package region maps store cities to sales regions.
package region

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Unknown is returned for any city missing from the table.
const Unknown = "Région inconnue"

// Table maps city names to region names.
type Table struct {
	Cities map[string]string `yaml:"cities"`
}

// DefaultTable returns the built-in city table.
func DefaultTable() Table {
	return Table{
		Cities: map[string]string{
			"Paris":      "Île-de-France",
			"Marseille":  "Provence-Alpes-Côte d'Azur",
			"Lyon":       "Auvergne-Rhône-Alpes",
			"Bordeaux":   "Nouvelle-Aquitaine",
			"Lille":      "Hauts-de-France",
			"Nantes":     "Pays de la Loire",
			"Strasbourg": "Grand Est",
		},
	}
}

// LoadTable loads a city table from a YAML file of the form:
//
//	cities:
//	  Toulouse: Occitanie
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read region table: %w", err)
	}

	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("parse region table: %w", err)
	}
	return t, nil
}

// Resolver resolves cities to regions. It is immutable once built, so
// Resolve is a pure lookup and safe for concurrent use.
type Resolver struct {
	cities map[string]string
}

// New builds a resolver from the default table overlaid with each extra
// table in order. Later entries win; blank names are ignored.
func New(extra ...map[string]string) *Resolver {
	cities := make(map[string]string)
	for city, region := range DefaultTable().Cities {
		cities[city] = region
	}
	for _, m := range extra {
		for city, region := range m {
			city, region = strings.TrimSpace(city), strings.TrimSpace(region)
			if city == "" || region == "" {
				continue
			}
			cities[city] = region
		}
	}
	return &Resolver{cities: cities}
}

// Default returns a resolver over the built-in table only.
func Default() *Resolver {
	return New()
}

// Resolve returns the region for city, or Unknown. It never fails.
func (r *Resolver) Resolve(city string) string {
	if region, ok := r.cities[strings.TrimSpace(city)]; ok {
		return region
	}
	return Unknown
}

// Len returns the number of known cities.
func (r *Resolver) Len() int {
	return len(r.cities)
}

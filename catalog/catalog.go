package catalog

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/gosimple/slug"
)

var ErrEmptyCity = errors.New("no places for city")

// Place is one candidate target location.
type Place struct {
	ID           string  `json:"id"`
	DisplayName  string  `json:"display_name"`
	AltNames     string  `json:"alt_names,omitempty"`
	Street       string  `json:"street,omitempty"`
	PostalCode   string  `json:"postal_code,omitempty"`
	Town         string  `json:"town,omitempty"`
	Municipality string  `json:"municipality,omitempty"`
	County       string  `json:"county,omitempty"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Difficulty   string  `json:"difficulty,omitempty"`
}

// AddressFull joins street, postal code and town, skipping blanks.
func (p Place) AddressFull() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Street, p.PostalCode, p.Town} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Clue is the hint shown to players before they guess.
func (p Place) Clue() string {
	switch {
	case p.Street != "" && p.Town != "":
		return fmt.Sprintf("Nära %s, %s", p.Street, p.Town)
	case p.DisplayName != "":
		return firstPart(p.DisplayName)
	case p.AltNames != "":
		return firstPart(p.AltNames)
	case p.Municipality != "":
		return "I " + p.Municipality
	default:
		return "Okänd plats"
	}
}

// Label is the name revealed with the solution.
func (p Place) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Clue()
}

// Address falls back from the full address to the street to the label.
func (p Place) Address() string {
	if a := p.AddressFull(); a != "" {
		return a
	}
	if p.Street != "" {
		return p.Street
	}
	return p.Label()
}

func firstPart(s string) string {
	return strings.TrimSpace(strings.Split(s, ",")[0])
}

// Center is the default map center for a city.
type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type City struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Center Center `json:"center"`
}

var (
	centers = map[string]Center{
		"stockholm": {59.334, 18.063},
		"goteborg":  {57.707, 11.967},
		"malmo":     {55.605, 13.003},
	}
	displayNames = map[string]string{
		"stockholm": "Stockholm",
		"goteborg":  "Göteborg",
		"malmo":     "Malmö",
	}
	fallbackCenter = Center{62.0, 15.0}
)

// CityKey normalizes user input such as "Malmö" or " GÖTEBORG " to a catalog key.
func CityKey(city string) string {
	return slug.Make(strings.TrimSpace(city))
}

// DisplayName returns the human name for a city key.
func DisplayName(key string) string {
	if name, ok := displayNames[key]; ok {
		return name
	}
	return key
}

// Catalog is the in-memory, per-city set of places. It is safe for concurrent use.
type Catalog struct {
	places map[string][]Place

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a catalog from already-loaded places, keyed by any city spelling.
func New(places map[string][]Place) *Catalog {
	c := &Catalog{
		places: make(map[string][]Place, len(places)),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for city, rows := range places {
		key := CityKey(city)
		c.places[key] = append(c.places[key], rows...)
	}
	return c
}

// Seed makes sampling deterministic.
func (c *Catalog) Seed(seed uint64) {
	c.mu.Lock()
	c.rng = rand.New(rand.NewPCG(seed, seed))
	c.mu.Unlock()
}

// Has reports whether the city has at least one place.
func (c *Catalog) Has(city string) bool {
	return len(c.places[CityKey(city)]) > 0
}

// Known reports whether the city is one of the built-in cities or was
// loaded, even without places.
func (c *Catalog) Known(city string) bool {
	key := CityKey(city)
	if _, ok := centers[key]; ok {
		return true
	}
	_, ok := c.places[key]
	return ok
}

// Len returns the number of places for a city.
func (c *Catalog) Len(city string) int {
	return len(c.places[CityKey(city)])
}

// Cities lists the non-empty cities, sorted by key.
func (c *Catalog) Cities() []City {
	cities := make([]City, 0, len(c.places))
	for key, rows := range c.places {
		if len(rows) == 0 {
			continue
		}
		center, ok := centers[key]
		if !ok {
			center = fallbackCenter
		}
		cities = append(cities, City{Key: key, Name: DisplayName(key), Center: center})
	}
	sort.Slice(cities, func(i, j int) bool { return cities[i].Key < cities[j].Key })
	return cities
}

// Random picks one place for the city.
func (c *Catalog) Random(city string) (Place, error) {
	rows := c.places[CityKey(city)]
	if len(rows) == 0 {
		return Place{}, fmt.Errorf("%w: %q", ErrEmptyCity, city)
	}

	c.mu.Lock()
	i := c.rng.IntN(len(rows))
	c.mu.Unlock()

	return rows[i], nil
}

// Sample returns n places for the city. Places are drawn without repetition
// while the city has enough of them; a shorter city is padded by repeating
// from a fresh shuffle.
func (c *Catalog) Sample(city string, n int) ([]Place, error) {
	rows := c.places[CityKey(city)]
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyCity, city)
	}
	if n <= 0 {
		return []Place{}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Place, 0, n)
	for len(out) < n {
		for _, i := range c.rng.Perm(len(rows)) {
			if len(out) == n {
				break
			}
			out = append(out, rows[i])
		}
	}
	return out, nil
}

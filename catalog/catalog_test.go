package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const stockholmCSV = "\ufeffid,display_name,alt_names,street,postnummer,ort,kommun,lan,lat,lon,svardighet\n" +
	"1,Stadshuset,,Hantverkargatan 1,112 21,Stockholm,Stockholm,Stockholms län,59.3275,18.0543,lätt\n" +
	"2,\"Globen, Johanneshov\",,,,,Stockholm,,\"59,2937\",\"18,0831\",medel\n" +
	"3,Broken row,,,,,,,not-a-number,18.0\n" +
	"4,,\"Skansen, Djurgården\",,,,,,59.3262,18.1036,svår\n" +
	"5,Missing lon,,,,,,,59.3,\n"

func TestReadCSVSkipsBadRows(t *testing.T) {
	places, err := ReadCSV(strings.NewReader(stockholmCSV))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(places) != 3 {
		t.Fatalf("got %d places, want 3: %+v", len(places), places)
	}

	if places[0].ID != "1" || places[0].Town != "Stockholm" || places[0].PostalCode != "112 21" {
		t.Errorf("unexpected first place: %+v", places[0])
	}
	if places[1].Lat != 59.2937 || places[1].Lon != 18.0831 {
		t.Errorf("decimal comma not parsed: %+v", places[1])
	}
	if places[2].Difficulty != "svår" {
		t.Errorf("difficulty = %q", places[2].Difficulty)
	}
}

func TestReadCSVEmpty(t *testing.T) {
	places, err := ReadCSV(strings.NewReader(""))
	if err != nil || len(places) != 0 {
		t.Fatalf("ReadCSV(empty) = %v, %v", places, err)
	}
}

func TestPlaceClue(t *testing.T) {
	tests := []struct {
		name  string
		place Place
		want  string
	}{
		{"street and town", Place{Street: "Drottninggatan 5", Town: "Stockholm", DisplayName: "X"}, "Nära Drottninggatan 5, Stockholm"},
		{"display name first part", Place{DisplayName: "Globen, Johanneshov"}, "Globen"},
		{"alt names", Place{AltNames: "Skansen, Djurgården"}, "Skansen"},
		{"municipality", Place{Municipality: "Solna"}, "I Solna"},
		{"nothing", Place{}, "Okänd plats"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.place.Clue(); got != tt.want {
				t.Errorf("Clue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlaceAddress(t *testing.T) {
	p := Place{Street: "Hantverkargatan 1", PostalCode: "112 21", Town: "Stockholm"}
	if got := p.Address(); got != "Hantverkargatan 1, 112 21, Stockholm" {
		t.Errorf("Address() = %q", got)
	}

	p = Place{DisplayName: "Globen"}
	if got := p.Address(); got != "Globen" {
		t.Errorf("Address() fallback = %q", got)
	}
}

func TestCityKey(t *testing.T) {
	tests := map[string]string{
		"stockholm":   "stockholm",
		" Stockholm ": "stockholm",
		"Göteborg":    "goteborg",
		"MALMÖ":       "malmo",
	}
	for in, want := range tests {
		if got := CityKey(in); got != want {
			t.Errorf("CityKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func testCatalog(n int) *Catalog {
	rows := make([]Place, n)
	for i := range rows {
		rows[i] = Place{ID: string(rune('a' + i)), Lat: 59 + float64(i)/100, Lon: 18}
	}
	c := New(map[string][]Place{"Stockholm": rows, "malmo": nil})
	c.Seed(42)
	return c
}

func TestSampleWithoutRepetition(t *testing.T) {
	c := testCatalog(10)

	got, err := c.Sample("stockholm", 5)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}

	seen := map[string]bool{}
	for _, p := range got {
		if seen[p.ID] {
			t.Errorf("place %s repeated while catalog had enough places", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestSamplePadsSmallCity(t *testing.T) {
	c := testCatalog(2)

	got, err := c.Sample("Stockholm", 7)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("len = %d, want 7", len(got))
	}
	for _, p := range got {
		if p.ID != "a" && p.ID != "b" {
			t.Errorf("unexpected place %q", p.ID)
		}
	}
}

func TestSampleEmptyCity(t *testing.T) {
	c := testCatalog(3)

	for _, city := range []string{"malmo", "uppsala"} {
		if _, err := c.Sample(city, 3); !errors.Is(err, ErrEmptyCity) {
			t.Errorf("Sample(%q) err = %v, want ErrEmptyCity", city, err)
		}
		if _, err := c.Random(city); !errors.Is(err, ErrEmptyCity) {
			t.Errorf("Random(%q) err = %v, want ErrEmptyCity", city, err)
		}
	}

	got, err := c.Sample("stockholm", 0)
	if err != nil || len(got) != 0 {
		t.Errorf("Sample(n=0) = %v, %v", got, err)
	}
}

func TestCities(t *testing.T) {
	c := New(map[string][]Place{
		"stockholm": {{ID: "1"}},
		"malmo":     nil,
		"uppsala":   {{ID: "2"}},
	})

	cities := c.Cities()
	if len(cities) != 2 {
		t.Fatalf("got %d cities, want 2: %+v", len(cities), cities)
	}
	if cities[0].Key != "stockholm" || cities[0].Center.Lat != 59.334 {
		t.Errorf("unexpected first city: %+v", cities[0])
	}
	if cities[1].Key != "uppsala" || cities[1].Center != fallbackCenter {
		t.Errorf("unknown city should use fallback center: %+v", cities[1])
	}
	if !c.Has("Stockholm") || c.Has("malmo") {
		t.Errorf("Has() mismatch")
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "places_stockholm.csv"), []byte(stockholmCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir, DefaultFiles)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len("stockholm") != 3 {
		t.Errorf("stockholm has %d places, want 3", c.Len("stockholm"))
	}
	if c.Has("goteborg") {
		t.Errorf("goteborg should be empty when its file is missing")
	}
}

package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"geoguess/logger"
)

// DefaultFiles maps the shipped cities to their CSV files under the data dir.
var DefaultFiles = map[string]string{
	"stockholm": "places_stockholm.csv",
	"goteborg":  "places_goteborg.csv",
	"malmo":     "places_malmo.csv",
}

// Load reads every city file under dir. A missing file leaves the city empty
// instead of failing the whole load.
func Load(dir string, files map[string]string) (*Catalog, error) {
	places := make(map[string][]Place, len(files))

	for city, name := range files {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("catalog: %s missing, city %s has no places", path, city)
			places[city] = nil
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}

		rows, err := ReadCSV(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		logger.Info("catalog: loaded %d places for %s", len(rows), city)
		places[city] = rows
	}

	return New(places), nil
}

// ReadCSV parses a places file. Rows whose coordinates do not parse are skipped.
func ReadCSV(r io.Reader) ([]Place, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var places []Place
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			logger.Debug("catalog: skipping line %d: %v", line, err)
			continue
		}

		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		lat, latErr := parseCoord(get("lat"))
		lon, lonErr := parseCoord(get("lon"))
		if latErr != nil || lonErr != nil {
			logger.Debug("catalog: skipping line %d: bad coordinates %q,%q", line, get("lat"), get("lon"))
			continue
		}

		places = append(places, Place{
			ID:           get("id"),
			DisplayName:  get("display_name"),
			AltNames:     get("alt_names"),
			Street:       get("street"),
			PostalCode:   get("postnummer"),
			Town:         get("ort"),
			Municipality: get("kommun"),
			County:       get("lan"),
			Lat:          lat,
			Lon:          lon,
			Difficulty:   get("svardighet"),
		})
	}

	return places, nil
}

// parseCoord accepts both "59.33" and "59,33".
func parseCoord(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("empty coordinate")
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}

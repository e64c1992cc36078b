package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/obralink/obrabot-backend/internal/models"
)

// LocationInput carries everything a single inbound message can say about a
// coordinate: the structured payload the channel attaches to location shares,
// plus the free text (which may contain a map link, a geo: URI or a bare
// lat,lng pair).
type LocationInput struct {
	Latitude  *float64
	Longitude *float64
	Text      string
}

var (
	// Common map-service URL shapes: .../@38.7,-9.1,15z, ?q=38.7,-9.1,
	// ?query=38.7,-9.1, ?ll=38.7,-9.1, /maps/place/38.7,-9.1
	mapURLPatterns = []*regexp.Regexp{
		regexp.MustCompile(`@(-?\d{1,3}(?:\.\d+)?),(-?\d{1,3}(?:\.\d+)?)`),
		regexp.MustCompile(`[?&]q=(-?\d{1,3}(?:\.\d+)?),(-?\d{1,3}(?:\.\d+)?)`),
		regexp.MustCompile(`[?&]query=(-?\d{1,3}(?:\.\d+)?),(-?\d{1,3}(?:\.\d+)?)`),
		regexp.MustCompile(`[?&]ll=(-?\d{1,3}(?:\.\d+)?),(-?\d{1,3}(?:\.\d+)?)`),
		regexp.MustCompile(`/maps/place/(-?\d{1,3}(?:\.\d+)?),(-?\d{1,3}(?:\.\d+)?)`),
	}

	geoURIPattern   = regexp.MustCompile(`geo:(-?\d{1,3}(?:\.\d+)?),(-?\d{1,3}(?:\.\d+)?)`)
	barePairPattern = regexp.MustCompile(`(-?\d{1,3}(?:\.\d+)?)\s*,\s*(-?\d{1,3}(?:\.\d+)?)`)
)

// ExtractLocation tries to pull a usable coordinate out of an inbound
// message. Candidates are tried in precedence order: structured payload,
// map-service URL, geo: URI, bare lat,lng pair in free text. Absence of a
// decodable coordinate is a valid negative result, not an error.
func ExtractLocation(input LocationInput) (models.Coordinate, bool) {
	if input.Latitude != nil && input.Longitude != nil {
		if coord, ok := validCoordinate(*input.Latitude, *input.Longitude); ok {
			return coord, true
		}
	}

	text := strings.TrimSpace(input.Text)
	if text == "" {
		return models.Coordinate{}, false
	}

	for _, pattern := range mapURLPatterns {
		if coord, ok := matchPair(pattern, text); ok {
			return coord, true
		}
	}

	if coord, ok := matchPair(geoURIPattern, text); ok {
		return coord, true
	}

	// Bare pair anywhere in the text; take the first valid candidate.
	for _, match := range barePairPattern.FindAllStringSubmatch(text, -1) {
		if coord, ok := parsePair(match[1], match[2]); ok {
			return coord, true
		}
	}

	return models.Coordinate{}, false
}

func matchPair(pattern *regexp.Regexp, text string) (models.Coordinate, bool) {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return models.Coordinate{}, false
	}
	return parsePair(match[1], match[2])
}

func parsePair(latStr, lngStr string) (models.Coordinate, bool) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return models.Coordinate{}, false
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return models.Coordinate{}, false
	}
	return validCoordinate(lat, lng)
}

// validCoordinate accepts a pair only when both values are finite, within
// geographic bounds, and not a near-origin placeholder fix.
func validCoordinate(lat, lng float64) (models.Coordinate, bool) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return models.Coordinate{}, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return models.Coordinate{}, false
	}
	// GPS fixes right at the origin are placeholder values, not positions.
	if math.Abs(lat) < 0.001 && math.Abs(lng) < 0.001 {
		return models.Coordinate{}, false
	}
	return models.Coordinate{Latitude: lat, Longitude: lng}, true
}

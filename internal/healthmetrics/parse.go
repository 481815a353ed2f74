// Package healthmetrics records weight and height observations. Free-form
// user input is normalized to the units the backend stores, pounds for
// weight and meters for height, before anything is submitted.
package healthmetrics

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
)

const (
	poundsPerKilogram   = 2.2046226218
	metersPerInch       = 0.0254
	metersPerFoot       = 0.3048
	metersPerCentimeter = 0.01

	// maxHeightMeters bounds plausible human height so meters typed where
	// centimeters were meant fail loudly instead of producing nonsense.
	maxHeightMeters = 3.0
	maxWeightPounds = 1500.0
)

// feetInches matches forms like 5'10", 5 ft 10 in, and 6'.
var feetInches = regexp.MustCompile(`^(\d+)\s*(?:'|ft|feet)\s*(?:(\d+(?:\.\d+)?)\s*(?:"|in|inches)?)?$`)

// ParseWeight reads a weight entry and returns pounds. A bare number is
// taken as pounds; "lb"/"lbs" and "kg" suffixes are accepted.
func ParseWeight(input string) (float64, error) {
	value, unit, ok := splitMeasure(input)
	if !ok {
		return 0, weightError(input)
	}
	switch unit {
	case "", "lb", "lbs", "pound", "pounds":
	case "kg", "kgs", "kilogram", "kilograms":
		value *= poundsPerKilogram
	default:
		return 0, weightError(input)
	}
	if value <= 0 || value > maxWeightPounds {
		return 0, weightError(input)
	}
	return round2(value), nil
}

// ParseHeight reads a height entry and returns meters. A bare number is
// taken as meters; "cm", "in", "ft", and feet-inches forms like 5'10" are
// accepted.
func ParseHeight(input string) (float64, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if m := feetInches.FindStringSubmatch(s); m != nil {
		feet, _ := strconv.ParseFloat(m[1], 64)
		var inches float64
		if m[2] != "" {
			inches, _ = strconv.ParseFloat(m[2], 64)
		}
		if inches >= 12 {
			return 0, heightError(input)
		}
		return heightMeters(feet*metersPerFoot+inches*metersPerInch, input)
	}

	value, unit, ok := splitMeasure(s)
	if !ok {
		return 0, heightError(input)
	}
	switch unit {
	case "", "m", "meter", "meters":
	case "cm", "centimeter", "centimeters":
		value *= metersPerCentimeter
	case "in", "inch", "inches":
		value *= metersPerInch
	default:
		return 0, heightError(input)
	}
	return heightMeters(value, input)
}

// BMI mirrors the backend's computation: weight over height squared, rounded
// to two decimals.
func BMI(weight, height float64) float64 {
	if height <= 0 {
		return 0
	}
	return round2(weight / (height * height))
}

func heightMeters(value float64, input string) (float64, error) {
	if value <= 0 || value > maxHeightMeters {
		return 0, heightError(input)
	}
	return round2(value), nil
}

// splitMeasure separates a leading number from a trailing unit word.
func splitMeasure(input string) (float64, string, bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return 0, "", false
	}
	i := strings.IndexFunc(s, unicode.IsLetter)
	numPart, unit := s, ""
	if i >= 0 {
		numPart, unit = strings.TrimSpace(s[:i]), strings.TrimSpace(s[i:])
	}
	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, "", false
	}
	return value, unit, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func weightError(input string) error {
	return &healthapi.ValidationError{Field: "weight", Message: "weight must be a positive number in lbs or kg, got " + strconv.Quote(input)}
}

func heightError(input string) error {
	return &healthapi.ValidationError{Field: "height", Message: "height must be a positive measure in m, cm, or feet and inches, got " + strconv.Quote(input)}
}

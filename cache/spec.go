package cache

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidSpec = errors.New("invalid cache spec")

// Spec describes cache sizing and expiry.
// Its textual form is a comma separated list of key=value pairs,
// e.g. "expireAfterWrite=5s,maximumSize=100".
type Spec struct {
	// Entries older than this are never returned. Zero disables storing.
	ExpireAfterWrite time.Duration
	// Maximum number of entries, zero is unbounded.
	MaximumSize int
}

// ParseSpec parses the textual form of a Spec.
// Durations are an integer followed by one of the units d, h, m or s.
func ParseSpec(s string) (Spec, error) {
	var spec Spec
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return spec, fmt.Errorf("%w: %q has no value", ErrInvalidSpec, pair)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "expireAfterWrite":
			d, err := parseSpecDuration(value)
			if err != nil {
				return spec, fmt.Errorf("%w: expireAfterWrite: %v", ErrInvalidSpec, err)
			}
			spec.ExpireAfterWrite = d
		case "maximumSize":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return spec, fmt.Errorf("%w: maximumSize %q", ErrInvalidSpec, value)
			}
			spec.MaximumSize = n
		default:
			return spec, fmt.Errorf("%w: unsupported key %q", ErrInvalidSpec, key)
		}
	}
	return spec, nil
}

// MustParseSpec is like ParseSpec but panics on error.
// It is meant for compile-time constant specs.
func MustParseSpec(s string) Spec {
	spec, err := ParseSpec(s)
	if err != nil {
		panic(err)
	}
	return spec
}

var specUnits = []struct {
	suffix string
	unit   time.Duration
}{
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

func parseSpecDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("empty duration")
	}
	for _, u := range specUnits {
		if digits, ok := strings.CutSuffix(value, u.suffix); ok {
			n, err := strconv.ParseInt(digits, 10, 64)
			if err != nil || n < 0 {
				return 0, fmt.Errorf("invalid duration %q", value)
			}
			if n > math.MaxInt64/int64(u.unit) {
				return 0, fmt.Errorf("duration %q is too long", value)
			}
			return time.Duration(n) * u.unit, nil
		}
	}
	return 0, fmt.Errorf("duration %q needs a unit (d, h, m or s)", value)
}

// String returns the parsable form of the spec.
func (s Spec) String() string {
	parts := []string{"expireAfterWrite=" + formatSpecDuration(s.ExpireAfterWrite)}
	if s.MaximumSize > 0 {
		parts = append(parts, "maximumSize="+strconv.Itoa(s.MaximumSize))
	}
	return strings.Join(parts, ",")
}

func formatSpecDuration(d time.Duration) string {
	for _, u := range specUnits {
		if d != 0 && d%u.unit == 0 {
			return strconv.FormatInt(int64(d/u.unit), 10) + u.suffix
		}
	}
	return strconv.FormatInt(int64(d/time.Second), 10) + "s"
}

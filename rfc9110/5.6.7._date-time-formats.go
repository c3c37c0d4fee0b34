package rfc9110

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// §  5.6.7.  Date/Time Formats
// §
// §     Prior to 1995, there were three different formats commonly used by
// §     servers to communicate timestamps.  For compatibility with old
// §     implementations, all three are defined here.  The preferred format is
// §     a fixed-length and single-zone subset of the date and time
// §     specification used by the Internet Message Format [RFC5322].
// §
// §       HTTP-date    = IMF-fixdate / obs-date
// §
// §     A recipient that parses a timestamp value in an HTTP field MUST
// §     accept all three HTTP-date formats.
func HttpDate(dateStr string) (time.Time, error) {
	str := normalizeDateStr(dateStr)
	date, err := imfDate(str)
	if err == nil {
		return date, nil
	}
	// try to parse as obsolete date
	if date, obsErr := obsDate(str); obsErr == nil {
		return date, nil
	}
	// return original error if unsuccessful
	return time.Time{}, err
}

// §     When a sender generates a field
// §     that contains one or more timestamps defined as HTTP-date, the sender
// §     MUST generate those timestamps in the IMF-fixdate format.
func ToHttpDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// §       IMF-fixdate  = day-name "," SP date1 SP time-of-day SP GMT
// §       ; fixed length/zone/capitalization subset of the format
// §       ; see Section 3.3 of [RFC5322]
func imfDate(str string) (time.Time, error) {
	date, err := time.Parse(time.RFC1123, str)
	if err != nil {
		return date, err
	}
	if name, _ := date.Zone(); name != "GMT" {
		return date, fmt.Errorf("date %s is not in GMT time, but %s", str, name)
	}
	return date.UTC(), nil
}

// §       obs-date     = rfc850-date / asctime-date
// §
// §       rfc850-date  = day-name-l "," SP date2 SP time-of-day SP GMT
// §       asctime-date = day-name SP date3 SP time-of-day SP year
func obsDate(str string) (time.Time, error) {
	if date, err := time.Parse(time.RFC850, str); err == nil {
		return date.UTC(), nil
	}
	date, err := time.Parse(time.ANSIC, str)
	return date.UTC(), err
}

// §     HTTP-date is case sensitive.  Note that Section 4.2 of [CACHING]
// §     relaxes this for cache recipients.
//
// Only the zone is normalized, since the Go layouts need the
// capitalized day and month names.
func normalizeDateStr(dateStr string) string {
	str := strings.TrimSpace(dateStr)
	if i := strings.LastIndexByte(str, ' '); i >= 0 && strings.EqualFold(str[i+1:], "GMT") {
		str = str[:i+1] + "GMT"
	}
	return str
}

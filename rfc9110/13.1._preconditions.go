package rfc9110

import (
	"net/http"
	"time"
)

// §  13.1.2.  If-None-Match
// §
// §     The "If-None-Match" header field makes the request method conditional
// §     on a recipient cache or origin server either not having any current
// §     representation of the target resource, when the field value is "*",
// §     or having a selected representation with an entity tag that does not
// §     match any of those listed in the field value.
//
// The stored validator is a single strong entity tag, so the field value must
// equal it exactly. Lists and weak comparison are not evaluated.
func ifNoneMatch(r *http.Request, etag string) bool {
	inm := r.Header.Get("If-None-Match")
	return inm != "" && inm == etag
}

// §  13.1.3.  If-Modified-Since
// §
// §     A recipient MUST ignore the If-Modified-Since header field if the
// §     received field value is not a valid HTTP-date, the field value has
// §     more than one member, or if the request method is neither GET nor
// §     HEAD.
// §
// §     If the selected representation's last modification date is earlier
// §     or equal to the date provided in the field value, the condition is
// §     false.
func ifModifiedSince(r *http.Request, lastModified time.Time) bool {
	ims := r.Header.Values("If-Modified-Since")
	if len(ims) != 1 {
		return false
	}
	date, err := HttpDate(ims[0])
	if err != nil {
		return false
	}
	return !date.Before(lastModified.Truncate(time.Second))
}

// NotModified reports whether a 304 (Not Modified) can be sent for a
// representation with the given validators.
// It is true when If-None-Match equals the entity tag, or when If-Modified-Since
// is at or after the last modification (compared at seconds resolution).
// Either header matching is enough; a request without either is never satisfied.
func NotModified(r *http.Request, etag string, lastModified time.Time) bool {
	return ifNoneMatch(r, etag) || ifModifiedSince(r, lastModified)
}

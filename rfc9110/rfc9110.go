// Package rfc9110 implements the parts of HTTP Semantics (RFC 9110)
// needed to serve cached representations: HTTP-date handling
// and evaluation of conditional GET requests.
//
// Comments starting with § quote the RFC.
package rfc9110

import (
	"net/http"
	"strconv"
	"time"
)

// §  8.8.2.  Last-Modified
// §
// §     An origin server with a clock (as defined in Section 5.6.7) MUST NOT
// §     generate a Last-Modified date that is later than the server's time of
// §     message origination (Date).
// §
// §  8.8.3.  ETag
// §
// §     An origin server SHOULD send an ETag for any selected representation
// §     for which detection of changes can be reasonably and consistently
// §     determined.
//
// SetValidators sets the Last-Modified and ETag fields of h.
func SetValidators(h http.Header, etag string, lastModified time.Time) {
	h.Set("Last-Modified", ToHttpDate(lastModified))
	h.Set("ETag", etag)
}

// §  15.4.5.  304 Not Modified
// §
// §     The server generating a 304 response MUST generate any of the
// §     following header fields that would have been sent in a 200 (OK)
// §     response to the same request:
// §
// §     *  Content-Location, Date, ETag, and Vary
// §
// §     *  Cache-Control and Expires (see [CACHING])
//
// WriteNotModified writes a 304 response repeating the validators.
func WriteNotModified(w http.ResponseWriter, etag string, lastModified time.Time) {
	SetValidators(w.Header(), etag, lastModified)
	w.WriteHeader(http.StatusNotModified)
}

// §  8.6.  Content-Length
// §
// §     A server MAY send a Content-Length header field in a response to a
// §     HEAD request (Section 9.3.2); a server MUST NOT send Content-Length
// §     in such a response unless its field value equals the decimal number
// §     of octets that would have been sent in the content of a response if
// §     the same request had used the GET method.
func SetContentLength(h http.Header, n int) {
	h.Set("Content-Length", strconv.Itoa(n))
}

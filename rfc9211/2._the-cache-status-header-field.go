// Package rfc9211 builds the Cache-Status response header (RFC 9211).
//
// Comments starting with § quote the RFC.
package rfc9211

import "strings"

// §  2.  The Cache-Status HTTP Response Header Field
// §
// §     The Cache-Status HTTP response header field indicates caches'
// §     handling of the request corresponding to the response it occurs
// §     within.
// §
// §     Its value is a List (Section 3.1 of [STRUCTURED-FIELDS]):
// §
// §     Cache-Status   = sf-list
// §
// §     Each member of the list represents a cache that has handled the
// §     request.  The first member of the list represents the cache closest
// §     to the origin server, and the last member of the list represents the
// §     cache closest to the user (possibly including the user agent's cache
// §     itself, if it appends a value).
// §
// §     Each list member identifies the cache that inserted it and this
// §     identifier MUST be a String or Token.
const Header = "Cache-Status"

// Status is encoded as a single list member.
type Status string

const (
	StatusHit Status = "hit"
	StatusFwd Status = "fwd"
)

// §  2.2.  The fwd Parameter
// §
// §     "fwd" indicates that the request went forward towards the origin;
// §     its value indicates why.
type FwdReason string

const (
	// §     bypass:  The cache was configured to not handle this request.
	FwdReasonBypass FwdReason = "bypass"
	// §     method:  The request method's semantics require the request to be
	// §        forwarded.
	FwdReasonMethod FwdReason = "method"
	// §     uri-miss:  The cache did not contain any responses that matched the
	// §        request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"
	// §     miss:  The cache did not contain any responses that could be used to
	// §        satisfy this request (to be used when an implementation cannot
	// §        distinguish between uri-miss and vary-miss).
	FwdReasonMiss FwdReason = "miss"
	// §     stale:  The cache was able to select a response for the request, but
	// §        it was stale.
	FwdReasonStale FwdReason = "stale"
)

// CacheStatus is one member of the Cache-Status list.
type CacheStatus struct {
	Cache     string
	Status    Status
	FwdReason FwdReason
	// §  2.5.  The stored Parameter
	// §
	// §     "stored" indicates whether the cache stored the response received
	// §     from the next hop server in response to a forwarded request
	Stored bool
	// §  2.6.  The collapsed Parameter
	// §
	// §     "collapsed" indicates whether this request was collapsed together
	// §     with one or more other forward requests
	Collapsed bool
	// §  2.8.  The detail Parameter
	// §
	// §     "detail" allows implementations to convey additional information
	// §     not captured in other parameters
	Detail string
}

// §  2.1.  The hit Parameter
// §
// §     "hit", when true, indicates that the request was satisfied by the
// §     cache; that is, it was not forwarded, and the response was obtained
// §     from the cache.
func (cs *CacheStatus) Hit() {
	cs.Status = StatusHit
	cs.FwdReason = ""
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.Status = StatusFwd
	cs.FwdReason = reason
}

// String returns the list member, e.g. "MarkdownAssets; fwd=uri-miss; stored".
func (cs CacheStatus) String() string {
	parts := []string{cs.Cache}
	switch cs.Status {
	case StatusHit:
		parts = append(parts, string(StatusHit))
	case StatusFwd:
		fwd := string(StatusFwd)
		if cs.FwdReason != "" {
			fwd += "=" + string(cs.FwdReason)
		}
		parts = append(parts, fwd)
	}
	if cs.Stored {
		parts = append(parts, "stored")
	}
	if cs.Collapsed {
		parts = append(parts, "collapsed")
	}
	if cs.Detail != "" {
		parts = append(parts, "detail="+cs.Detail)
	}
	return strings.Join(parts, "; ")
}

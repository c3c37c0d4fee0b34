package rfc9110

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var lastModified = time.Date(1994, time.November, 6, 8, 49, 37, 0, time.UTC)

func TestHttpDateFormats(t *testing.T) {
	for _, s := range []string{
		"Sun, 06 Nov 1994 08:49:37 GMT",
		"Sunday, 06-Nov-94 08:49:37 GMT",
		"Sun Nov  6 08:49:37 1994",
		"Sun, 06 Nov 1994 08:49:37 gmt",
	} {
		date, err := HttpDate(s)
		if err != nil {
			t.Fatalf("Error parsing date %q: %+v", s, err)
		}
		if !date.Equal(lastModified) {
			t.Fatalf("Date %q parsed as %s", s, date)
		}
	}
}

func TestHttpDateRejectsOtherZones(t *testing.T) {
	if _, err := HttpDate("Sun, 06 Nov 1994 08:49:37 PST"); err == nil {
		t.Fatal("Expected error for non-GMT date")
	}
	if _, err := HttpDate("yesterday"); err == nil {
		t.Fatal("Expected error for garbage date")
	}
}

func TestToHttpDate(t *testing.T) {
	if s := ToHttpDate(lastModified.In(time.FixedZone("X", 3600))); s != "Sun, 06 Nov 1994 08:49:37 GMT" {
		t.Fatalf("Date is %s", s)
	}
}

func request(headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/docs/index.md", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestNotModified(t *testing.T) {
	etag := `"abc"`
	cases := []struct {
		name    string
		headers map[string]string
		want    bool
	}{
		{"no conditionals", nil, false},
		{"matching etag", map[string]string{"If-None-Match": `"abc"`}, true},
		{"other etag", map[string]string{"If-None-Match": `"xyz"`}, false},
		{"unquoted etag", map[string]string{"If-None-Match": `abc`}, false},
		{"same date", map[string]string{"If-Modified-Since": "Sun, 06 Nov 1994 08:49:37 GMT"}, true},
		{"later date", map[string]string{"If-Modified-Since": "Mon, 07 Nov 1994 08:49:37 GMT"}, true},
		{"earlier date", map[string]string{"If-Modified-Since": "Sun, 06 Nov 1994 08:49:36 GMT"}, false},
		{"unparsable date", map[string]string{"If-Modified-Since": "not a date"}, false},
		{"etag mismatch date match", map[string]string{
			"If-None-Match":     `"xyz"`,
			"If-Modified-Since": "Sun, 06 Nov 1994 08:49:37 GMT",
		}, true},
	}
	for _, c := range cases {
		if got := NotModified(request(c.headers), etag, lastModified); got != c.want {
			t.Fatalf("%s: NotModified is %v", c.name, got)
		}
	}
}

func TestNotModifiedComparesSeconds(t *testing.T) {
	r := request(map[string]string{"If-Modified-Since": "Sun, 06 Nov 1994 08:49:37 GMT"})
	if !NotModified(r, `"abc"`, lastModified.Add(500*time.Millisecond)) {
		t.Fatal("Sub-second modification time should compare equal")
	}
}

func TestWriteNotModified(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNotModified(rec, `"abc"`, lastModified)
	if rec.Code != http.StatusNotModified {
		t.Fatalf("Status is %d", rec.Code)
	}
	if rec.Header().Get("ETag") != `"abc"` || rec.Header().Get("Last-Modified") != "Sun, 06 Nov 1994 08:49:37 GMT" {
		t.Fatalf("Headers are %v", rec.Header())
	}
	if rec.Body.Len() != 0 {
		t.Fatal("304 has a body")
	}
}

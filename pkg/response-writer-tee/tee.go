package tee

import (
	"net/http"
	"time"
)

// HeaderHook is called with the final headers just before they are sent.
type HeaderHook func(h http.Header, statusCode int)

// ResponseRecorder is a wrapper around http.ResponseWriter that records the status code
// and body size of the response while writing it through to the underlying writer.
type ResponseRecorder struct {
	rw           http.ResponseWriter
	status       int
	bytes        int64
	wroteHeaders bool
	hooks        []HeaderHook
	CreatedAt    time.Time
}

// NewResponseRecorder returns a new ResponseRecorder writing to w.
// Hooks are run in order before the headers are written.
func NewResponseRecorder(w http.ResponseWriter, hooks ...HeaderHook) *ResponseRecorder {
	return &ResponseRecorder{
		rw:        w,
		hooks:     hooks,
		CreatedAt: time.Now(),
	}
}

// Implementation of http.ResponseWriter
func (t *ResponseRecorder) Header() http.Header {
	return t.rw.Header()
}

// Implementation of http.ResponseWriter
func (t *ResponseRecorder) WriteHeader(statusCode int) {
	if t.wroteHeaders {
		return
	}
	// remember that we wrote the headers
	t.wroteHeaders = true
	// set the status code so we can return it later
	t.status = statusCode
	for _, hook := range t.hooks {
		hook(t.rw.Header(), statusCode)
	}
	t.rw.WriteHeader(statusCode)
}

// Implementation of http.ResponseWriter
func (t *ResponseRecorder) Write(b []byte) (int, error) {
	// write headers if not already written
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	n, err := t.rw.Write(b)
	t.bytes += int64(n)
	return n, err
}

// Unwrap returns the underlying writer, for http.ResponseController.
func (t *ResponseRecorder) Unwrap() http.ResponseWriter {
	return t.rw
}

// StatusCode returns the status code of the response, zero if nothing was written.
func (t *ResponseRecorder) StatusCode() int {
	return t.status
}

// BytesWritten returns the number of body bytes written.
func (t *ResponseRecorder) BytesWritten() int64 {
	return t.bytes
}

// Duration returns the time since the recorder was created.
func (t *ResponseRecorder) Duration() time.Duration {
	return time.Since(t.CreatedAt)
}

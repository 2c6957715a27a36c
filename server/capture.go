package server

import (
	"bytes"
	"net/http"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
)

const captureContextKey = "sitesettings.capture"

// Capture buffers a response so it can be rewritten before anything reaches the
// client. It replaces the echo response writer for the duration of a request and
// is either finalized or discarded, exactly once.
type Capture struct {
	resp   *echo.Response
	orig   http.ResponseWriter
	header http.Header
	head   bool

	status int
	buf    bytes.Buffer
	once   sync.Once
}

func newCapture(c echo.Context) *Capture {
	resp := c.Response()
	w := &Capture{
		resp:   resp,
		orig:   resp.Writer,
		header: resp.Writer.Header().Clone(),
		head:   c.Request().Method == http.MethodHead,
	}
	resp.Writer = w
	c.Set(captureContextKey, w)
	return w
}

// CaptureFrom returns the capture of the current request, if one is active.
func CaptureFrom(c echo.Context) (*Capture, bool) {
	w, ok := c.Get(captureContextKey).(*Capture)
	return w, ok && w != nil
}

// Header implements http.ResponseWriter.
func (w *Capture) Header() http.Header {
	return w.header
}

// WriteHeader records the first status code written.
func (w *Capture) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

// Write appends to the buffer.
func (w *Capture) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.buf.Write(b)
}

// Flush is a no-op; the body is emitted on finalization only.
func (w *Capture) Flush() {}

// Bytes returns the body captured so far.
func (w *Capture) Bytes() []byte {
	return w.buf.Bytes()
}

// Replace swaps the captured body for body.
func (w *Capture) Replace(body []byte) {
	w.buf.Reset()
	w.buf.Write(body)
}

// Status returns the captured status code.
func (w *Capture) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// SetStatus overrides the captured status code.
func (w *Capture) SetStatus(code int) {
	w.status = code
}

// Finalize writes the captured response through transform to the original
// writer. Calls after the first, or after Discard, do nothing.
func (w *Capture) Finalize(transform func([]byte) []byte) error {
	var err error
	w.once.Do(func() {
		body := w.buf.Bytes()
		if transform != nil && !isEncoded(w.header) {
			body = transform(body)
		}

		w.resp.Writer = w.orig
		dst := w.orig.Header()
		for k := range dst {
			delete(dst, k)
		}
		for k, v := range w.header {
			dst[k] = v
		}

		status := w.Status()
		if !w.head && bodyAllowed(status) {
			dst.Set(echo.HeaderContentLength, strconv.Itoa(len(body)))
		}
		w.orig.WriteHeader(status)
		if !w.head && bodyAllowed(status) {
			_, err = w.orig.Write(body)
		}

		w.resp.Status = status
		w.resp.Size = int64(len(body))
		w.resp.Committed = true
	})
	return err
}

// Discard drops the captured response and hands the original writer back
// uncommitted, so nothing partial is ever emitted.
func (w *Capture) Discard() {
	w.once.Do(func() {
		w.buf.Reset()
		w.resp.Writer = w.orig
		w.resp.Status = http.StatusOK
		w.resp.Size = 0
		w.resp.Committed = false
	})
}

func isEncoded(h http.Header) bool {
	enc := h.Get(echo.HeaderContentEncoding)
	return enc != "" && enc != "identity"
}

func bodyAllowed(status int) bool {
	return status >= http.StatusOK && status != http.StatusNoContent && status != http.StatusNotModified
}

package metrics

import (
	"io"
	"net/http"
	"time"
)

// observedWriter captures the status code a handler writes. It keeps Flush
// and ReadFrom working for streaming responses; the API never hijacks
// connections, so the remaining optional interfaces are not forwarded.
type observedWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (ow *observedWriter) WriteHeader(status int) {
	if !ow.wrote {
		ow.status = status
		ow.wrote = true
	}
	ow.ResponseWriter.WriteHeader(status)
}

func (ow *observedWriter) Write(p []byte) (int, error) {
	ow.wrote = true
	return ow.ResponseWriter.Write(p)
}

func (ow *observedWriter) Flush() {
	if flusher, ok := ow.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (ow *observedWriter) ReadFrom(r io.Reader) (int64, error) {
	if readerFrom, ok := ow.ResponseWriter.(io.ReaderFrom); ok {
		return readerFrom.ReadFrom(r)
	}
	return io.Copy(ow.ResponseWriter, r)
}

// HTTPMiddleware counts and times every request on the recorder, falling
// back to the process-wide default when recorder is nil.
func HTTPMiddleware(recorder *Recorder, next http.Handler) http.Handler {
	if recorder == nil {
		recorder = Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ow := &observedWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(ow, r)
		recorder.ObserveRequest(r.Method, r.URL.Path, ow.status, time.Since(start))
	})
}

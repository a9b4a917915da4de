package httpconn

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// mimeTypes is the small built-in extension table this server supports —
// static-file MIME handling beyond this is explicitly out of scope.
var mimeTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".txt":  "text/plain",
}

const defaultMIME = "application/octet-stream"

// StatsHandler lets the server wire internal/metrics' introspection
// endpoints into the static file responder without httpconn importing
// metrics directly. handled is false for any path the handler doesn't
// recognize, letting prepare fall through to static file serving.
type StatsHandler func(path, accept string) (body []byte, contentType string, handled bool)

func mimeFor(path string) string {
	if t, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	return defaultMIME
}

// responseWriter builds and flushes a single HTTP/1.1 response. Every
// response this server emits closes the connection afterward — there is no
// keep-alive beyond a single request, per the Non-goals.
type responseWriter struct {
	root    string
	stats   StatsHandler
	out     []byte
	sent    int
	flushed bool
	status  int
}

func newResponseWriter(root string, stats StatsHandler) *responseWriter {
	return &responseWriter{root: root, stats: stats}
}

// prepare builds the response bytes for req. If ok is false (the request
// could not be parsed), it builds a 400.
func (w *responseWriter) prepare(req request, ok bool, root string) {
	switch {
	case !ok:
		w.out = statusResponse(400, "Bad Request")
		w.status = 400
	case req.method != "GET" && req.method != "HEAD":
		w.out = statusResponse(405, "Method Not Allowed")
		w.status = 405
	case w.stats != nil && isStatsPath(req.path):
		w.out = w.serveStats(req)
	default:
		w.out = w.serveStatic(req, root)
	}
	w.sent = 0
	w.flushed = false
}

// StatusCode returns the HTTP status of the last prepared response, used
// only for metrics classification.
func (w *responseWriter) StatusCode() int { return w.status }

func isStatsPath(path string) bool {
	return strings.HasPrefix(path, "/debug/stats")
}

func (w *responseWriter) serveStats(req request) []byte {
	body, contentType, handled := w.stats(req.path, req.accept)
	if !handled {
		w.status = 404
		return statusResponse(404, "Not Found")
	}
	w.status = 200
	header := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Type: %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n",
		contentType, len(body),
	)
	return append([]byte(header), body...)
}

func (w *responseWriter) serveStatic(req request, root string) []byte {
	clean := filepath.Clean(req.path)
	if clean == "." || clean == "/" {
		clean = "/index.html"
	}
	full := filepath.Join(root, filepath.FromSlash(clean))

	// Reject any path that escaped root via "..".
	if !strings.HasPrefix(full, filepath.Clean(root)+string(filepath.Separator)) && full != filepath.Clean(root) {
		w.status = 403
		return statusResponse(403, "Forbidden")
	}

	body, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			w.status = 404
			return statusResponse(404, "Not Found")
		}
		w.status = 500
		return statusResponse(500, "Internal Server Error")
	}

	w.status = 200
	header := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Type: %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n",
		mimeFor(full), len(body),
	)
	if req.method == "HEAD" {
		return []byte(header)
	}
	return append([]byte(header), body...)
}

func statusResponse(code int, text string) []byte {
	body := fmt.Sprintf("<html><body><h1>%d %s</h1></body></html>", code, text)
	return []byte(fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: text/html\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		code, text, len(body), body,
	))
}

// BusyMessage is the short body sent to a client rejected because the
// server is already at MAX_FD.
func BusyMessage() []byte {
	return statusResponse(503, "Internal server busy")
}

// flush writes whatever of the prepared response remains, returning false
// on a write error — mirroring write()'s bool contract.
func (w *responseWriter) flush(conn net.Conn) bool {
	for w.sent < len(w.out) {
		n, err := conn.Write(w.out[w.sent:])
		w.sent += n
		if err != nil {
			return false
		}
	}
	w.flushed = true
	return true
}

func (w *responseWriter) done() bool {
	return w.flushed
}

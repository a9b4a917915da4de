package httpconn

import (
	"bufio"
	"bytes"
	"net"
	"net/textproto"
	"strings"
)

// maxRequestSize bounds how much a single request line + headers may grow
// to before the parser gives up — a single malicious or broken client must
// never be able to grow a buffer without limit.
const maxRequestSize = 64 * 1024

// request is the minimal subset of an HTTP/1.1 request this server acts
// on: method and path are enough to serve a static file tree.
type request struct {
	method string
	path   string
	host   string
	accept string
}

// requestParser accumulates bytes across possibly-partial reads and parses
// a single request out of them once the header block is complete. One
// parser is created per accepted connection and discarded with it — this
// server handles exactly one request per connection, with no keep-alive.
type requestParser struct {
	buf bytes.Buffer
}

func newRequestParser() *requestParser {
	return &requestParser{}
}

// readOnce drains whatever is currently available on conn into the
// parser's buffer. It returns false on EOF or any read error, mirroring
// read_once()'s bool contract; the caller (Proactor path) treats false as
// "fire the timer callback and close."
func (p *requestParser) readOnce(conn net.Conn) bool {
	tmp := make([]byte, 4096)
	n, err := conn.Read(tmp)
	if n > 0 {
		p.buf.Write(tmp[:n])
	}
	return err == nil && p.buf.Len() < maxRequestSize
}

// parse extracts a request from the buffered bytes once a full header
// block (terminated by a blank line) has arrived. complete reports
// whether a verdict is available yet at all: it is false while the
// buffer still lacks the blank-line terminator and hasn't yet grown past
// maxRequestSize, in which case the caller must keep waiting for more
// bytes rather than treat this as a parse failure. Once complete is true,
// ok reports whether what arrived was a well-formed request.
func (p *requestParser) parse() (req request, ok bool, complete bool) {
	idx := bytes.Index(p.buf.Bytes(), []byte("\r\n\r\n"))
	if idx < 0 {
		return request{}, false, p.buf.Len() >= maxRequestSize
	}

	reader := textproto.NewReader(bufio.NewReader(bytes.NewReader(p.buf.Bytes()[:idx+2])))
	line, err := reader.ReadLine()
	if err != nil {
		return request{}, false, true
	}

	fields := strings.Fields(line)
	if len(fields) != 3 {
		return request{}, false, true
	}

	hdr, err := reader.ReadMIMEHeader()
	if err != nil && hdr == nil {
		return request{}, false, true
	}

	return request{
		method: fields[0],
		path:   fields[1],
		host:   hdr.Get("Host"),
		accept: hdr.Get("Accept"),
	}, true, true
}

package metrics

import "strings"

// StatsPath and StreamPath are the two introspection routes this package
// serves.
const (
	StatsPath  = "/debug/stats"
	StreamPath = "/debug/stats/stream"
)

// Handler resolves a request path/Accept header into an encoded stats
// response. It implements httpconn.StatsHandler's signature structurally,
// so the server wires it in without httpconn importing this package.
type Handler struct {
	counters *Counters
}

// NewHandler builds a Handler over counters.
func NewHandler(counters *Counters) *Handler {
	return &Handler{counters: counters}
}

// Serve resolves path against the known introspection routes. accept picks
// the codec: "application/msgpack" selects msgpack, anything else (or no
// match) falls back to the compile-time JSON codec.
func (h *Handler) Serve(path, accept string) (body []byte, contentType string, handled bool) {
	switch path {
	case StatsPath:
		return h.serveSnapshot(accept)
	case StreamPath:
		return h.serveStreamFrame(accept)
	default:
		return nil, "", false
	}
}

func (h *Handler) codecFor(accept string) Codec {
	t := CodecJSON
	if strings.Contains(accept, "msgpack") {
		t = CodecMsgpack
	}
	codec, err := NewCodec(t)
	if err != nil {
		// NewCodec only errors on an unrecognized CodecType, which codecFor
		// never produces.
		codec, _ = NewCodec(CodecJSON)
	}
	return codec
}

func (h *Handler) serveSnapshot(accept string) ([]byte, string, bool) {
	codec := h.codecFor(accept)
	body, err := codec.Marshal(h.counters.Snapshot())
	if err != nil {
		return nil, "", false
	}
	return body, codec.ContentType(), true
}

// serveStreamFrame answers /debug/stats/stream with a single length-
// prefixed frame (see stream.go) wrapping the same snapshot body a plain
// /debug/stats request would return, giving a client that already speaks
// the framing protocol a push-shaped entry point without requiring the
// connection to outlive a single response — this server closes every
// connection after one response, per the wire protocol's Non-goals.
func (h *Handler) serveStreamFrame(accept string) ([]byte, string, bool) {
	codec := h.codecFor(accept)
	payload, err := codec.Marshal(h.counters.Snapshot())
	if err != nil {
		return nil, "", false
	}
	frame, err := EncodeFrame(payload)
	if err != nil {
		return nil, "", false
	}
	return frame, "application/octet-stream", true
}

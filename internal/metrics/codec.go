package metrics

import "fmt"

// Codec serializes a Snapshot for the /debug/stats family of endpoints.
// The server picks one compile-time JSON implementation (selected by
// build tag) and msgpack is always available as an explicit alternative
// content type.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
	ContentType() string
}

// CodecType names a codec the metrics handler can select from the
// request's Accept header.
type CodecType string

const (
	CodecJSON    CodecType = "json"
	CodecMsgpack CodecType = "msgpack"
)

// NewCodec resolves a CodecType to its implementation. The JSON
// implementation is chosen at compile time by build tag (see
// codec_json_*.go); msgpack has exactly one implementation.
func NewCodec(t CodecType) (Codec, error) {
	switch t {
	case CodecJSON, "":
		return &jsonCodec{}, nil
	case CodecMsgpack:
		return &msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("metrics: unknown codec %q", t)
	}
}

package metrics

import "github.com/vmihailenco/msgpack/v5"

type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (msgpackCodec) Name() string                       { return "msgpack" }
func (msgpackCodec) ContentType() string                { return "application/msgpack" }

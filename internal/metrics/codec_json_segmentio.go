//go:build json_segmentio

package metrics

import "github.com/segmentio/encoding/json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json-segmentio" }
func (jsonCodec) ContentType() string                { return "application/json" }

//go:build !json_goccy && !json_segmentio

package metrics

import "encoding/json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)            { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error       { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                             { return "json-stdlib" }
func (jsonCodec) ContentType() string                      { return "application/json" }

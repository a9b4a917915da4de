//go:build json_goccy

package metrics

import "github.com/goccy/go-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json-goccy" }
func (jsonCodec) ContentType() string                { return "application/json" }

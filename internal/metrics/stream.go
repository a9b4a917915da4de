package metrics

import (
	"bytes"

	"github.com/avarga/reactorhttpd/internal/framing"
)

// EncodeFrame wraps payload in internal/framing's 4-byte length-prefixed
// envelope, giving the otherwise test-only framing package a concrete,
// exercised caller in the server.
func EncodeFrame(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := framing.NewFramer(&buf).WriteMessage(payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeFrame reads a single framed message back out, used by tests and by
// any client-side tooling that wants to verify a captured stream frame.
func DecodeFrame(data []byte) ([]byte, error) {
	return framing.NewFramer(bytes.NewReader(data)).ReadMessage()
}

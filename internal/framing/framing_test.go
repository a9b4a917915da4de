package framing

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func TestFramerWriteMessage(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{name: "snapshot body", body: []byte(`{"active":3,"queue_depth":0}`)},
		{name: "empty body", body: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			framer := NewFramer(&buf)

			if err := framer.WriteMessage(tt.body); err != nil {
				t.Fatalf("WriteMessage failed: %v", err)
			}

			written := buf.Bytes()
			if len(written) < 4 {
				t.Fatal("frame too short")
			}

			length := binary.BigEndian.Uint32(written[:4])
			if int(length) != len(tt.body) {
				t.Errorf("length mismatch: header=%d, actual=%d", length, len(tt.body))
			}
			if !bytes.Equal(written[4:], tt.body) {
				t.Error("payload mismatch")
			}
		})
	}
}

func TestFramerReadMessageRoundTrip(t *testing.T) {
	body := []byte(`{"active":1}`)

	var buf bytes.Buffer
	if err := NewFramer(&buf).WriteMessage(body); err != nil {
		t.Fatalf("failed to write message: %v", err)
	}

	got, err := NewFramer(&buf).ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Error("read message doesn't match original")
	}
}

func TestFramerMaxFrameSize(t *testing.T) {
	var buf bytes.Buffer
	maxSize := 100
	framer := NewFramerWithMaxSize(&buf, maxSize)

	largeData := make([]byte, maxSize+1)
	if err := framer.WriteMessage(largeData); err == nil {
		t.Error("expected error for oversized message")
	}
}

func TestFramerPartialRead(t *testing.T) {
	body := []byte(`{"active":7,"queue_depth":2}`)

	var fullBuf bytes.Buffer
	if err := NewFramer(&fullBuf).WriteMessage(body); err != nil {
		t.Fatalf("failed to write message: %v", err)
	}

	pr := &partialReader{data: fullBuf.Bytes(), chunkSize: 10}

	msg, err := NewFramer(pr).ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	if !bytes.Equal(msg, body) {
		t.Error("partial read resulted in corrupted message")
	}
}

// partialReader simulates reading data in small chunks, the way a real
// Unix domain socket read can split a frame across several syscalls.
type partialReader struct {
	data      []byte
	offset    int
	chunkSize int
}

func (r *partialReader) Read(p []byte) (n int, err error) {
	if r.offset >= len(r.data) {
		return 0, io.EOF
	}

	remaining := len(r.data) - r.offset
	toRead := r.chunkSize
	if toRead > remaining {
		toRead = remaining
	}
	if toRead > len(p) {
		toRead = len(p)
	}

	copy(p, r.data[r.offset:r.offset+toRead])
	r.offset += toRead
	return toRead, nil
}

func (r *partialReader) Write(_ []byte) (n int, err error) {
	return 0, io.ErrClosedPipe
}

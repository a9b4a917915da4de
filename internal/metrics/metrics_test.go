package metrics

import (
	"testing"
	"time"
)

func TestConnectionOpenedClosedTracksActive(t *testing.T) {
	c := New(0)
	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()

	snap := c.Snapshot()
	if snap.ActiveConnections != 1 {
		t.Fatalf("expected 1 active connection, got %d", snap.ActiveConnections)
	}
	if snap.ConnectionsOpened != 2 || snap.ConnectionsClosed != 1 {
		t.Fatalf("unexpected open/close counts: %+v", snap)
	}
}

func TestRequestFinishedClassifiesOutcomes(t *testing.T) {
	c := New(0)
	c.RequestFinished(true, false, time.Millisecond)
	c.RequestFinished(false, false, time.Millisecond)
	c.RequestFinished(false, true, time.Millisecond)

	snap := c.Snapshot()
	if snap.RequestsTotal != 3 || snap.RequestsSucceeded != 1 || snap.RequestsFailed != 1 || snap.RequestsTimedOut != 1 {
		t.Fatalf("unexpected request counts: %+v", snap)
	}
}

func TestPercentileOnEmptyIsZero(t *testing.T) {
	c := New(0)
	if p := c.Percentile(95); p != 0 {
		t.Fatalf("expected 0, got %v", p)
	}
}

func TestPercentileOrdersSamples(t *testing.T) {
	c := New(0)
	for _, d := range []time.Duration{5, 1, 3, 2, 4} {
		c.recordLatency(d * time.Millisecond)
	}
	if p := c.Percentile(0); p != time.Millisecond {
		t.Fatalf("p0 should be the minimum, got %v", p)
	}
	if p := c.Percentile(100); p != 5*time.Millisecond {
		t.Fatalf("p100 should be the maximum, got %v", p)
	}
}

func TestHandlerServesSnapshotAsJSON(t *testing.T) {
	c := New(0)
	c.ConnectionOpened()
	h := NewHandler(c)

	body, contentType, handled := h.Serve(StatsPath, "application/json")
	if !handled {
		t.Fatal("expected /debug/stats to be handled")
	}
	if contentType != "application/json" {
		t.Fatalf("expected json content type, got %q", contentType)
	}
	if len(body) == 0 {
		t.Fatal("expected non-empty body")
	}
}

func TestHandlerServesMsgpackOnAccept(t *testing.T) {
	c := New(0)
	h := NewHandler(c)

	_, contentType, handled := h.Serve(StatsPath, "application/msgpack")
	if !handled {
		t.Fatal("expected handled=true")
	}
	if contentType != "application/msgpack" {
		t.Fatalf("expected msgpack content type, got %q", contentType)
	}
}

func TestHandlerUnknownPathNotHandled(t *testing.T) {
	h := NewHandler(New(0))
	if _, _, handled := h.Serve("/index.html", ""); handled {
		t.Fatal("expected unknown path to fall through")
	}
}

func TestStreamFrameRoundTrips(t *testing.T) {
	c := New(0)
	h := NewHandler(c)

	frame, _, handled := h.Serve(StreamPath, "application/json")
	if !handled {
		t.Fatal("expected /debug/stats/stream to be handled")
	}

	payload, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if len(payload) == 0 {
		t.Fatal("expected non-empty decoded payload")
	}
}

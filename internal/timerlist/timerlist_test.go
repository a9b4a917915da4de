package timerlist

import (
	"testing"
	"time"
)

func fixedClock(t int64) func() time.Time {
	return func() time.Time { return time.Unix(t, 0) }
}

func TestAddKeepsAscendingOrder(t *testing.T) {
	l := New(fixedClock(0))

	var fired []int
	cb := func(user int) { fired = append(fired, user) }

	l.Add(30, 3, cb)
	l.Add(10, 1, cb)
	l.Add(20, 2, cb)

	if !l.Valid() {
		t.Fatalf("list invariants broken after Add")
	}

	var order []int
	n := l.head
	for n != nilIndex {
		order = append(order, l.arena[n].user)
		n = l.arena[n].next
	}
	want := []int{1, 2, 3}
	for i, v := range want {
		if order[i] != v {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestAddTiesBreakByInsertionOrder(t *testing.T) {
	l := New(fixedClock(0))
	l.Add(10, 1, nil)
	l.Add(10, 2, nil)
	l.Add(10, 3, nil)

	var order []int
	n := l.head
	for n != nilIndex {
		order = append(order, l.arena[n].user)
		n = l.arena[n].next
	}
	want := []int{1, 2, 3}
	for i, v := range want {
		if order[i] != v {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestAddDelRoundTrip(t *testing.T) {
	l := New(fixedClock(0))
	l.Add(5, 1, nil)
	h := l.Add(10, 2, nil)
	l.Add(15, 3, nil)

	before := l.Len()
	l.Del(h)
	if l.Len() != before-1 {
		t.Fatalf("Len after Del = %d, want %d", l.Len(), before-1)
	}
	if !l.Valid() {
		t.Fatalf("list invariants broken after Del")
	}
}

func TestAdjustMovesTowardTail(t *testing.T) {
	l := New(fixedClock(0))
	h1 := l.Add(10, 1, nil)
	l.Add(20, 2, nil)
	l.Add(30, 3, nil)

	if err := l.Adjust(h1, 25); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if !l.Valid() {
		t.Fatalf("list invariants broken after Adjust")
	}

	var order []int
	n := l.head
	for n != nilIndex {
		order = append(order, l.arena[n].user)
		n = l.arena[n].next
	}
	want := []int{2, 1, 3}
	for i, v := range want {
		if order[i] != v {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestAdjustRejectsBackwardMove(t *testing.T) {
	l := New(fixedClock(0))
	h := l.Add(10, 1, nil)

	if err := l.Adjust(h, 5); err != ErrNonMonotonic {
		t.Fatalf("Adjust backward = %v, want ErrNonMonotonic", err)
	}
}

func TestAdjustNoopWhenAlreadyInPlace(t *testing.T) {
	l := New(fixedClock(0))
	h := l.Add(10, 1, nil)
	l.Add(20, 2, nil)

	if err := l.Adjust(h, 10); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if l.head != int(h) {
		t.Fatalf("head moved on a no-op adjust")
	}
}

func TestTickFiresExpiredInAscendingOrder(t *testing.T) {
	clock := int64(100)
	l := New(fixedClock(clock))

	var fired []int
	cb := func(user int) { fired = append(fired, user) }

	l.Add(90, 1, cb)
	l.Add(100, 2, cb) // expire == now counts as expired
	l.Add(110, 3, cb)

	n := l.Tick()
	if n != 2 {
		t.Fatalf("Tick fired %d timers, want 2", n)
	}
	if len(fired) != 2 || fired[0] != 1 || fired[1] != 2 {
		t.Fatalf("fired = %v, want [1 2]", fired)
	}
	if l.Len() != 1 {
		t.Fatalf("Len after Tick = %d, want 1", l.Len())
	}
}

func TestTickOnEmptyListIsNoop(t *testing.T) {
	l := New(fixedClock(0))
	if n := l.Tick(); n != 0 {
		t.Fatalf("Tick on empty list fired %d, want 0", n)
	}
}

func TestCallbackInvokedExactlyOnce(t *testing.T) {
	calls := 0
	l := New(fixedClock(0))
	h := l.Add(0, 1, func(int) { calls++ })

	l.Tick()
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	// A second Tick (or a stray Del) must not invoke the callback again;
	// the handle was already recycled by the first Tick.
	l.Del(h)
	l.Tick()
	if calls != 1 {
		t.Fatalf("calls after second tick = %d, want 1", calls)
	}
}

func TestValidOnEmptyList(t *testing.T) {
	l := New(fixedClock(0))
	if !l.Valid() {
		t.Fatalf("empty list should be valid")
	}
}

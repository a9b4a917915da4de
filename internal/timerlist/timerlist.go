// Package timerlist implements a sorted doubly-linked list of connection
// expiry records. It is the single-threaded component described as the
// idle-connection timer: callers add a record when a connection is
// accepted, adjust it on activity, and the owning loop calls Tick once per
// alarm period to expire anything whose deadline has passed.
//
// The list is not safe for concurrent use. Exactly one goroutine — the
// event loop — is expected to call Add, Adjust, Del and Tick.
package timerlist

import (
	"errors"
	"time"
)

// ErrNonMonotonic is returned by Adjust when the new expiry would move a
// timer backward in the list. adjust_timer in the original source assumes
// callers only ever extend a deadline; this enforces that contract instead
// of leaving it undocumented.
var ErrNonMonotonic = errors.New("timerlist: adjust must not move expire backward")

const nilIndex = -1

type node struct {
	expire   int64
	callback func(user int)
	user     int
	prev     int
	next     int
	inUse    bool
}

// Handle is a stable reference to a node in the list's arena. It remains
// valid until the node is deleted, at which point the arena slot is
// recycled and the handle must not be reused.
type Handle int

// List is a slab-backed doubly-linked list of timers sorted ascending by
// expire. Ties break by insertion order: equal-expiry records are placed
// after existing ones.
type List struct {
	arena []node
	free  []int
	head  int
	tail  int
	now   func() time.Time
}

// New creates an empty timer list. nowFn defaults to time.Now when nil,
// and exists so tests can supply a deterministic clock.
func New(nowFn func() time.Time) *List {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &List{
		head: nilIndex,
		tail: nilIndex,
		now:  nowFn,
	}
}

func (l *List) allocate() int {
	if n := len(l.free); n > 0 {
		idx := l.free[n-1]
		l.free = l.free[:n-1]
		return idx
	}
	l.arena = append(l.arena, node{})
	return len(l.arena) - 1
}

func (l *List) release(idx int) {
	l.arena[idx] = node{}
	l.free = append(l.free, idx)
}

// Add inserts a new timer expiring at expire (absolute, seconds since
// epoch) bound to user, invoking cb when it fires. It returns the handle
// used for later Adjust/Del calls.
func (l *List) Add(expire int64, user int, cb func(user int)) Handle {
	idx := l.allocate()
	l.arena[idx] = node{
		expire:   expire,
		callback: cb,
		user:     user,
		prev:     nilIndex,
		next:     nilIndex,
		inUse:    true,
	}

	if l.head == nilIndex {
		l.head = idx
		l.tail = idx
		return Handle(idx)
	}

	if expire < l.arena[l.head].expire {
		l.linkBefore(idx, l.head)
		l.head = idx
		return Handle(idx)
	}

	l.insertFrom(idx, l.head)
	return Handle(idx)
}

// insertFrom walks forward starting at searchFrom looking for the first
// node whose expire is strictly greater than idx's, and inserts idx before
// it. If none is found, idx is appended at the tail.
func (l *List) insertFrom(idx, searchFrom int) {
	target := l.arena[idx].expire
	n := searchFrom
	for n != nilIndex {
		if l.arena[n].expire > target {
			l.linkBefore(idx, n)
			return
		}
		n = l.arena[n].next
	}
	l.linkAfter(idx, l.tail)
	l.tail = idx
}

func (l *List) linkBefore(idx, before int) {
	p := l.arena[before].prev
	l.arena[idx].prev = p
	l.arena[idx].next = before
	l.arena[before].prev = idx
	if p != nilIndex {
		l.arena[p].next = idx
	}
}

func (l *List) linkAfter(idx, after int) {
	if after == nilIndex {
		l.arena[idx].prev = nilIndex
		l.arena[idx].next = nilIndex
		return
	}
	nx := l.arena[after].next
	l.arena[idx].prev = after
	l.arena[idx].next = nx
	l.arena[after].next = idx
	if nx != nilIndex {
		l.arena[nx].prev = idx
	}
}

// Adjust re-dates h to newExpire and repositions it. newExpire must be >=
// the timer's current expire; Adjust never moves a node toward the head.
func (l *List) Adjust(h Handle, newExpire int64) error {
	idx := int(h)
	n := &l.arena[idx]
	if !n.inUse {
		return nil
	}
	if newExpire < n.expire {
		return ErrNonMonotonic
	}

	n.expire = newExpire

	if idx == l.tail {
		return nil
	}
	if n.expire < l.arena[n.next].expire {
		return nil
	}

	next := n.next
	l.unlink(idx)
	l.insertFrom(idx, next)
	return nil
}

// Del removes h from the list. Deleting a handle twice is a no-op.
func (l *List) Del(h Handle) {
	idx := int(h)
	if idx < 0 || idx >= len(l.arena) || !l.arena[idx].inUse {
		return
	}
	l.unlink(idx)
	l.release(idx)
}

func (l *List) unlink(idx int) {
	n := &l.arena[idx]
	if n.prev != nilIndex {
		l.arena[n.prev].next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nilIndex {
		l.arena[n.next].prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nilIndex
	n.next = nilIndex
}

// Tick fires and removes every timer whose expire is <= now. Ties at the
// boundary (expire == now) count as expired. It returns the number of
// timers fired, for metrics.
func (l *List) Tick() int {
	now := l.now().Unix()
	fired := 0
	for l.head != nilIndex && l.arena[l.head].expire <= now {
		idx := l.head
		cb := l.arena[idx].callback
		user := l.arena[idx].user
		l.unlink(idx)
		l.release(idx)
		fired++
		if cb != nil {
			cb(user)
		}
	}
	return fired
}

// Len returns the number of live timers. It is O(1).
func (l *List) Len() int {
	return len(l.arena) - len(l.free)
}

// Empty reports whether the list has no live timers.
func (l *List) Empty() bool {
	return l.head == nilIndex
}

// Valid walks the list and checks the structural invariants: head.prev ==
// nil, tail.next == nil, every interior node's prev.next == it == next.prev,
// and expire is non-decreasing. It exists for property-based tests.
func (l *List) Valid() bool {
	if l.head == nilIndex {
		return l.tail == nilIndex
	}
	if l.arena[l.head].prev != nilIndex {
		return false
	}
	if l.arena[l.tail].next != nilIndex {
		return false
	}

	prev := nilIndex
	n := l.head
	var lastExpire int64
	first := true
	for n != nilIndex {
		if prev != nilIndex && l.arena[n].prev != prev {
			return false
		}
		if !first && l.arena[n].expire < lastExpire {
			return false
		}
		lastExpire = l.arena[n].expire
		first = false
		prev = n
		n = l.arena[n].next
	}
	return prev == l.tail
}

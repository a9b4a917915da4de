// Package epoll wraps the Linux epoll readiness multiplexer, the self-pipe
// signal bridge, and the small set of socket-option calls the event loop
// needs at startup. It is the Go counterpart of the original source's
// Utils class: fd nonblocking, epoll registration, signal installation,
// and the periodic alarm.
//
// Everything here is gated to linux — this server targets Linux-class
// hosts and epoll has no portable equivalent.
package epoll

// TriggerMode selects level- or edge-triggered readiness notification for
// a registered file descriptor.
type TriggerMode int

const (
	// LevelTriggered repeats notification while the fd remains ready.
	LevelTriggered TriggerMode = iota
	// EdgeTriggered notifies once per state transition; the consumer must
	// drain until EAGAIN.
	EdgeTriggered
)

// Event is one readiness notification returned by Wait.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	// Closed reports a peer hangup or local error (EPOLLRDHUP, EPOLLHUP,
	// EPOLLERR) — the event loop must treat this as terminal regardless of
	// Readable/Writable.
	Closed bool
}

// Signal is a decoded byte off the self-pipe: either the alarm tick or the
// termination request. SIGPIPE is ignored at installation time and never
// reaches here.
type Signal int

const (
	// SignalNone is returned for bytes that don't map to a tracked signal.
	SignalNone Signal = iota
	SignalAlarm
	SignalTerm
)

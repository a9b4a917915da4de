package workerpool

// Mode selects how read/write readiness is handled, fixed for the life of
// the pool via the -a CLI flag. Proactor does the socket I/O on the event
// loop's own goroutine and only hands finished work to a worker; Reactor
// hands the raw I/O itself to a worker and blocks on the slot's handshake
// (a condition variable, not a spin) until it completes.
type Mode int

const (
	Proactor Mode = iota
	Reactor
)

// Kind distinguishes what a queued work item asks a worker to do. Proactor
// mode only ever queues KindProcess, since its write path runs inline on
// the event loop rather than through the pool, mirroring how its read
// path already does the I/O inline.
type Kind int

const (
	KindRead Kind = iota
	KindWrite
	KindProcess
)

// WorkItem is one unit of dispatch: a connection's file descriptor and
// what to do with it.
type WorkItem struct {
	FD   int
	Kind Kind
}

// Package stdin implements StdinBuffer from spec.md §3/§4.8, grounded
// directly on original_source's kernel/src/io/stdin_buf.rs: a byte FIFO
// plus a set of pids blocked in read_input_wait. Push resolves the
// documented broadcast-to-all-waiters behavior (spec.md §9 open
// question): this implementation keeps it, since the original data
// structure (a BTreeSet of waiters, iterated in full on every push) makes
// broadcast the natural reading of the source rather than an oversight,
// and changing it silently would contradict the ordering guarantee in
// spec.md §5 that a single push wakes every registered waiter.
package stdin

import (
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/sysheap/yaos/internal/process"
)

// Waker is the narrow callback Push uses to deliver a byte to one waiting
// process, supplied by the scheduler/cpu glue so this package needs no
// direct process-table dependency beyond looking up by pid.
type Waker interface {
	// Lookup returns the process for pid, mirroring process.Table.Lookup.
	Lookup(pid process.Pid) (*process.Process, bool)
}

// Buffer is a FIFO of not-yet-consumed bytes plus the set of pids
// registered to be woken by the next byte, exactly as in the original's
// StdinBuffer.
type Buffer struct {
	mu sync.Mutex

	data    []byte
	waiters map[process.Pid]struct{}
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{waiters: make(map[process.Pid]struct{})}
}

// RegisterWakeup adds pid to the set woken by the next pushed byte.
func (b *Buffer) RegisterWakeup(pid process.Pid) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waiters[pid] = struct{}{}
}

// Pop removes and returns the oldest buffered byte, if any.
func (b *Buffer) Pop() (byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		return 0, false
	}
	c := b.data[0]
	b.data = b.data[1:]
	return c, true
}

// PushResult reports what Push did, so the caller (the UART IRQ path)
// knows whether to request a reschedule.
type PushResult struct {
	// Delivered is true if the byte went straight to one or more waiters
	// instead of the FIFO.
	Delivered bool
	// TimerWasDisabled is true if the hart's timer was off before this
	// push (i.e. the hart was idling on an empty StdinBuffer) and needs
	// re-arming now that a waiter became Runnable.
	TimerWasDisabled bool
}

// Push delivers byte to every registered waiter (broadcast, see the
// package doc) if any are registered, clearing the wakeup set; otherwise
// it enqueues the byte for a future read_input/read_input_wait. timerOn
// reports whether the hart's timer is currently armed, sampled by the
// caller since only cpu/scheduler glue knows it.
func (b *Buffer) Push(byteValue byte, wakers Waker, timerOn bool) PushResult {
	b.mu.Lock()
	waiters := b.waiters
	b.waiters = make(map[process.Pid]struct{})
	b.mu.Unlock()

	if len(waiters) == 0 {
		b.mu.Lock()
		b.data = append(b.data, byteValue)
		b.mu.Unlock()
		return PushResult{}
	}

	for pid := range waiters {
		if p, ok := wakers.Lookup(pid); ok {
			p.ResumeOnSyscall(byteValue)
		}
	}

	return PushResult{Delivered: true, TimerWasDisabled: !timerOn}
}

package stdin

import (
	"testing"

	"github.com/sysheap/yaos/internal/process"
)

type fakeWakers struct {
	procs map[process.Pid]*process.Process
}

func (f fakeWakers) Lookup(pid process.Pid) (*process.Process, bool) {
	p, ok := f.procs[pid]
	return p, ok
}

func TestPushEnqueuesWhenNoWaiters(t *testing.T) {
	b := New()
	result := b.Push('a', fakeWakers{}, true)

	if result.Delivered {
		t.Fatal("expected no delivery with no waiters")
	}
	c, ok := b.Pop()
	if !ok || c != 'a' {
		t.Fatalf("got (%v, %v), want ('a', true)", c, ok)
	}
}

func TestPushDeliversToSingleWaiter(t *testing.T) {
	b := New()
	p := process.New(1, "a", nil, 0, 0)
	p.SetWaitingOnSyscall(process.SyscallResume{Action: process.ResumeDeliverByte})
	b.RegisterWakeup(1)

	result := b.Push('z', fakeWakers{procs: map[process.Pid]*process.Process{1: p}}, true)

	if !result.Delivered {
		t.Fatal("expected delivery to registered waiter")
	}
	if p.State() != process.Runnable {
		t.Fatalf("expected waiter Runnable, got %v", p.State())
	}
	if _, ok := b.Pop(); ok {
		t.Fatal("expected byte delivered directly, not enqueued")
	}
}

func TestPushBroadcastsToMultipleWaiters(t *testing.T) {
	b := New()
	p1 := process.New(1, "a", nil, 0, 0)
	p2 := process.New(2, "b", nil, 0, 0)
	p1.SetWaitingOnSyscall(process.SyscallResume{Action: process.ResumeDeliverByte})
	p2.SetWaitingOnSyscall(process.SyscallResume{Action: process.ResumeDeliverByte})
	b.RegisterWakeup(1)
	b.RegisterWakeup(2)

	b.Push('q', fakeWakers{procs: map[process.Pid]*process.Process{1: p1, 2: p2}}, true)

	if p1.State() != process.Runnable || p2.State() != process.Runnable {
		t.Fatal("expected both waiters woken by a single push (broadcast semantics)")
	}
}

func TestPushReportsTimerNeedsRearmingAfterIdleWake(t *testing.T) {
	b := New()
	p := process.New(1, "a", nil, 0, 0)
	b.RegisterWakeup(1)

	result := b.Push('x', fakeWakers{procs: map[process.Pid]*process.Process{1: p}}, false)

	if !result.TimerWasDisabled {
		t.Fatal("expected TimerWasDisabled to report the timer needs re-arming")
	}
}

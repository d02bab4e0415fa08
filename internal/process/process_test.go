package process

import (
	"testing"

	"github.com/sysheap/yaos/internal/trapframe"
)

func TestInsertAssignsAscendingPids(t *testing.T) {
	table := NewTable()

	p1 := table.Insert("a", func(pid Pid) *Process { return New(pid, "a", nil, 0, 0) })
	p2 := table.Insert("b", func(pid Pid) *Process { return New(pid, "b", nil, 0, 0) })

	if p1.Pid() == NeverPid || p2.Pid() == NeverPid {
		t.Fatal("expected non-sentinel pids")
	}
	if p2.Pid() <= p1.Pid() {
		t.Fatalf("expected ascending pids, got %d then %d", p1.Pid(), p2.Pid())
	}
}

func TestNextRunnableSkipsNonRunnable(t *testing.T) {
	table := NewTable()
	p1 := table.Insert("a", func(pid Pid) *Process { return New(pid, "a", nil, 0, 0) })
	p2 := table.Insert("b", func(pid Pid) *Process { return New(pid, "b", nil, 0, 0) })
	p2.SetState(Waiting)

	next, ok := table.NextRunnable(p1.Pid())
	if !ok {
		t.Fatal("expected a runnable process")
	}
	if next.Pid() != p1.Pid() {
		t.Fatalf("expected pid %d, got %d", p1.Pid(), next.Pid())
	}
}

func TestNextRunnableWrapsAroundAfterHighestPid(t *testing.T) {
	table := NewTable()
	p1 := table.Insert("a", func(pid Pid) *Process { return New(pid, "a", nil, 0, 0) })
	p2 := table.Insert("b", func(pid Pid) *Process { return New(pid, "b", nil, 0, 0) })

	next, ok := table.NextRunnable(p2.Pid())
	if !ok {
		t.Fatal("expected a runnable process")
	}
	if next.Pid() != p1.Pid() {
		t.Fatalf("expected wrap to smallest pid %d, got %d", p1.Pid(), next.Pid())
	}
}

func TestNextRunnablePicksSmallestGreaterThanAfter(t *testing.T) {
	table := NewTable()
	p1 := table.Insert("a", func(pid Pid) *Process { return New(pid, "a", nil, 0, 0) })
	p2 := table.Insert("b", func(pid Pid) *Process { return New(pid, "b", nil, 0, 0) })
	table.Insert("c", func(pid Pid) *Process { return New(pid, "c", nil, 0, 0) })

	next, ok := table.NextRunnable(p1.Pid())
	if !ok {
		t.Fatal("expected a runnable process")
	}
	if next.Pid() != p2.Pid() {
		t.Fatalf("expected pid %d, got %d", p2.Pid(), next.Pid())
	}
}

func TestIsEmptyAfterRemovingLastProcess(t *testing.T) {
	table := NewTable()
	p := table.Insert("a", func(pid Pid) *Process { return New(pid, "a", nil, 0, 0) })

	if table.IsEmpty() {
		t.Fatal("expected non-empty table")
	}
	table.Remove(p.Pid())
	if !table.IsEmpty() {
		t.Fatal("expected empty table after removing only process")
	}
}

func TestHighestPidExcludingSkipsNamedProcess(t *testing.T) {
	table := NewTable()
	table.Insert("yash", func(pid Pid) *Process { return New(pid, "yash", nil, 0, 0) })
	p2 := table.Insert("stress", func(pid Pid) *Process { return New(pid, "stress", nil, 0, 0) })

	pid, ok := table.HighestPidExcluding("yash")
	if !ok {
		t.Fatal("expected a match")
	}
	if pid != p2.Pid() {
		t.Fatalf("expected pid %d, got %d", p2.Pid(), pid)
	}
}

func TestAddNotifyOnDieRecordsWaiters(t *testing.T) {
	table := NewTable()
	p1 := table.Insert("a", func(pid Pid) *Process { return New(pid, "a", nil, 0, 0) })
	p2 := table.Insert("b", func(pid Pid) *Process { return New(pid, "b", nil, 0, 0) })

	p1.AddNotifyOnDie(p2.Pid())

	waiters := p1.NotifyOnDie()
	if len(waiters) != 1 || waiters[0] != p2.Pid() {
		t.Fatalf("got %v, want [%d]", waiters, p2.Pid())
	}
}

func TestResumeOnSyscallDeliversByteAndClearsWait(t *testing.T) {
	p := New(1, "a", nil, 0, 0)
	p.SetWaitingOnSyscall(SyscallResume{Action: ResumeDeliverByte})

	p.ResumeOnSyscall('x')

	if p.State() != Runnable {
		t.Fatalf("expected Runnable after resume, got %v", p.State())
	}
	if got := p.TrapFrame().Get(trapframe.A0); got != uintptr('x') {
		t.Fatalf("expected delivered byte in a0, got %d", got)
	}
}

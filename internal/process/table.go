package process

import (
	"sort"

	"gvisor.dev/gvisor/pkg/sync"
)

// Table is the pid -> Process mapping of spec.md §4.6: pid allocation via
// a monotonic counter never recycled within a boot, ascending-pid
// iteration, and a dummy placeholder process reserved outside the real
// pid range.
type Table struct {
	mu sync.Mutex

	processes map[Pid]*Process
	nextPid   Pid
	dummy     *Process
}

// NewTable returns an empty table with its dummy process ready.
func NewTable() *Table {
	return &Table{
		processes: make(map[Pid]*Process),
		nextPid:   1, // pid 0 is NeverPid, reserved
		dummy:     newDummy(),
	}
}

// Dummy returns the placeholder process installed whenever no real
// process is current.
func (t *Table) Dummy() *Process { return t.dummy }

// Insert assigns a fresh pid, calls build with it to construct the
// process, adds the result to the table, and returns it. Insert is the
// sole pid allocator.
func (t *Table) Insert(name string, build func(pid Pid) *Process) *Process {
	t.mu.Lock()
	defer t.mu.Unlock()

	pid := t.nextPid
	t.nextPid++

	p := build(pid)
	t.processes[pid] = p
	return p
}

// Lookup returns the process for pid, if it exists and is not the
// sentinel NeverPid.
func (t *Table) Lookup(pid Pid) (*Process, bool) {
	if pid == NeverPid {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.processes[pid]
	return p, ok
}

// Remove drops pid from the table. It is the caller's responsibility
// (the scheduler's kill path) to have already released the process's
// address space and to have woken its waiters first.
func (t *Table) Remove(pid Pid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.processes, pid)
}

// IsEmpty reports whether no real process remains, the trigger for
// system shutdown at schedule time (spec.md §4.5).
func (t *Table) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.processes) == 0
}

// pidsSorted returns every live pid in ascending order. Caller must hold
// t.mu.
func (t *Table) pidsSorted() []Pid {
	pids := make([]Pid, 0, len(t.processes))
	for pid := range t.processes {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}

// NextRunnable implements the tie-break rule of spec.md §4.5: among
// Runnable processes, pick the smallest pid strictly greater than after,
// else wrap to the smallest pid overall. The dummy process is never
// selectable since it never lives in the table.
func (t *Table) NextRunnable(after Pid) (*Process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pids := t.pidsSorted()

	var wrapCandidate *Process
	for _, pid := range pids {
		p := t.processes[pid]
		if p.State() != Runnable {
			continue
		}
		if wrapCandidate == nil {
			wrapCandidate = p
		}
		if pid > after {
			return p, true
		}
	}
	if wrapCandidate != nil {
		return wrapCandidate, true
	}
	return nil, false
}

// HighestPidExcluding returns the live process with the greatest pid
// whose name is not in excludeNames, for the ctrl-C kill path.
func (t *Table) HighestPidExcluding(excludeNames ...string) (Pid, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	excluded := make(map[string]struct{}, len(excludeNames))
	for _, n := range excludeNames {
		excluded[n] = struct{}{}
	}

	pids := t.pidsSorted()
	for i := len(pids) - 1; i >= 0; i-- {
		p := t.processes[pids[i]]
		if _, skip := excluded[p.Name()]; skip {
			continue
		}
		return pids[i], true
	}
	return NeverPid, false
}

// Package timer arms and disarms the supervisor timer interrupt that
// drives preemption, the collaborator the scheduler's Hooks.ArmTimer and
// Hooks.DisableTimer fields close over. Grounded on
// processes::timer::set_timer's two call sites in kernel_init
// (prepare_for_scheduling arms it with an absolute mtime of zero, meaning
// "fire on the very next tick") and on the RISC-V privileged spec's timer
// CSR, which this kernel reads through the same go:linkname boundary
// internal/riscv uses for every other CSR.
package timer

import (
	_ "unsafe" // for go:linkname

	"github.com/sysheap/yaos/internal/sbi"
)

// ticksPerMillisecond is QEMU's virt machine CLINT frequency (10 MHz),
// the same constant the firmware and any RISC-V Linux timer driver
// targeting this board assume.
const ticksPerMillisecond = 10_000_000 / 1000

//go:linkname readTime riscv_read_time
//go:nosplit
func readTime() uint64

// Now returns the current mtime CSR value.
func Now() uint64 { return readTime() }

// Arm schedules the next timer interrupt millis milliseconds from now.
func Arm(millis int) {
	sbi.SetTimer(Now() + uint64(millis)*ticksPerMillisecond)
}

// Disarm pushes the timer interrupt out far enough that it never fires
// again before the hart is rescheduled, the idle loop's
// Hooks.DisableTimer -- there is no SBI "cancel timer" call, only
// "reprogram it," so the convention (shared with Linux's riscv timer
// driver) is to set it to the furthest representable instant.
func Disarm() {
	sbi.SetTimer(^uint64(0))
}

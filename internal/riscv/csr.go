// Package riscv is the narrow external-collaborator boundary between the
// Go kernel and the instructions no Go statement can express: CSR reads
// and writes, SBI ecalls, and the sfence.vma that makes a satp write
// visible. Grounded on the teacher kernel's go:linkname boundary in
// exceptions.go (set_vbar_el1, enable_irqs, read_esr_el1, ...), which
// binds Go function declarations with no body to assembly-provided
// symbols; this package does the same thing for RISC-V's CSR set instead
// of AArch64's.
package riscv

import (
	"math/bits"
	_ "unsafe" // for go:linkname
)

// Cause decodes scause: the interrupt bit plus the exception/interrupt
// code, mirroring original_source's InterruptCause and src/trap.rs's
// get_reason table.
type Cause uint

func (c Cause) IsInterrupt() bool { return c>>(bits.UintSize-1) == 1 }

func (c Cause) Code() uint {
	return uint(c<<1) >> 1
}

// Exception codes, scause with the interrupt bit clear.
const (
	ExcInstructionAddressMisaligned = 0
	ExcInstructionAccessFault       = 1
	ExcIllegalInstruction           = 2
	ExcBreakpoint                   = 3
	ExcLoadAddressMisaligned        = 4
	ExcLoadAccessFault              = 5
	ExcStoreAMOAddressMisaligned    = 6
	ExcStoreAMOAccessFault          = 7
	ExcEnvironmentCallFromUMode     = 8
	ExcEnvironmentCallFromSMode     = 9
	ExcInstructionPageFault         = 12
	ExcLoadPageFault                = 13
	ExcStoreAMOPageFault            = 15
)

// Interrupt codes, scause with the interrupt bit set.
const (
	IntSupervisorSoftware = 1
	IntSupervisorTimer    = 5
	IntSupervisorExternal = 9
)

// Reason renders a cause code the way src/trap.rs's get_reason does, for
// panic banners and debug logging.
func (c Cause) Reason() string {
	if c.IsInterrupt() {
		switch c.Code() {
		case IntSupervisorSoftware:
			return "Supervisor software interrupt"
		case IntSupervisorTimer:
			return "Supervisor timer interrupt"
		case IntSupervisorExternal:
			return "Supervisor external interrupt"
		default:
			return "Reserved"
		}
	}
	switch c.Code() {
	case ExcInstructionAddressMisaligned:
		return "Instruction address misaligned"
	case ExcInstructionAccessFault:
		return "Instruction access fault"
	case ExcIllegalInstruction:
		return "Illegal instruction"
	case ExcBreakpoint:
		return "Breakpoint"
	case ExcLoadAddressMisaligned:
		return "Load address misaligned"
	case ExcLoadAccessFault:
		return "Load access fault"
	case ExcStoreAMOAddressMisaligned:
		return "Store/AMO address misaligned"
	case ExcStoreAMOAccessFault:
		return "Store/AMO access fault"
	case ExcEnvironmentCallFromUMode:
		return "Environment call from U-mode"
	case ExcEnvironmentCallFromSMode:
		return "Environment call from S-mode"
	case ExcInstructionPageFault:
		return "Instruction page fault"
	case ExcLoadPageFault:
		return "Load page fault"
	case ExcStoreAMOPageFault:
		return "Store/AMO page fault"
	default:
		return "Reserved"
	}
}

// The functions below have no Go body: they are bound by the linker to
// assembly definitions that execute the actual csrr/csrw/sfence.vma
// instructions, exactly the way the teacher kernel binds
// read_esr_el1/write_elr_el1/set_vbar_el1 to AArch64 assembly.

//go:linkname ReadSepc riscv_read_sepc
//go:nosplit
func ReadSepc() uintptr

//go:linkname WriteSepc riscv_write_sepc
//go:nosplit
func WriteSepc(pc uintptr)

//go:linkname ReadScause riscv_read_scause
//go:nosplit
func ReadScause() Cause

//go:linkname ReadStval riscv_read_stval
//go:nosplit
func ReadStval() uintptr

//go:linkname ReadSscratch riscv_read_sscratch
//go:nosplit
func ReadSscratch() uintptr

//go:linkname WriteSscratch riscv_write_sscratch
//go:nosplit
func WriteSscratch(value uintptr)

// WriteSatp programs satp with a Sv39-mode root page table physical
// address and issues the sfence.vma required before the new mapping can
// be trusted, matching the activate() step spec.md §4.3 calls for.
//
//go:linkname WriteSatp riscv_write_satp
//go:nosplit
func WriteSatp(rootPhysAddr uintptr)

//go:linkname EnableSupervisorInterrupts riscv_enable_supervisor_interrupts
//go:nosplit
func EnableSupervisorInterrupts()

//go:linkname DisableSupervisorInterrupts riscv_disable_supervisor_interrupts
//go:nosplit
func DisableSupervisorInterrupts()

//go:linkname WaitForInterrupt riscv_wfi
//go:nosplit
func WaitForInterrupt()

// idleLoopEntry and secondaryHartEntry are addresses of tiny assembly
// routines the boot stub provides: one that wfi-loops forever (the PC
// the scheduler's IdleEntry hook programs sepc with whenever no process
// is Runnable) and one each secondary hart starts executing at (the PC
// sbi.StartHart's entryPoint argument names), matching
// original_source's `extern "C" fn start_hart(); start_hart as usize`
// pattern of taking a bare symbol's address as a CPU entry point.

//go:linkname idleLoopEntry idle_loop
var idleLoopEntry uintptr

//go:linkname secondaryHartEntry start_hart
var secondaryHartEntry uintptr

// IdleLoopEntry returns the physical address of the wfi-loop routine.
func IdleLoopEntry() uintptr { return idleLoopEntry }

// SecondaryHartEntry returns the physical address secondary harts should
// be started at.
func SecondaryHartEntry() uintptr { return secondaryHartEntry }

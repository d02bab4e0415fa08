// Package sbi wraps the handful of Supervisor Binary Interface calls this
// kernel needs to bring up additional harts and shut the machine down,
// the external-collaborator boundary spec.md §6 reserves for firmware
// calls. Grounded on original_source's kernel/src/cpu.rs (hart_state's
// start_hart ecall) and kernel/src/main.rs's shutdown path, using the
// same go:linkname-to-assembly-stub pattern internal/riscv uses for CSR
// access -- these are genuinely hardware calls with no Go body, so (like
// riscv/cpu/trap) this package carries no test file.
package sbi

import _ "unsafe"

// SpecVersion returns the SBI implementation's major/minor version, the
// base extension's sbi_get_spec_version call.
//
//go:linkname SpecVersion sbi_get_spec_version
//go:nosplit
func SpecVersion() (major, minor uint32)

// StartHart requests the SBI firmware start the hart identified by
// hartID executing at entryPoint with opaque handed to it as its first
// argument (the hart's own id, by RISC-V boot convention), the Hart
// State Management extension's HSM_START call used to bring up
// secondary harts.
//
//go:linkname StartHart sbi_hart_start
//go:nosplit
func StartHart(hartID uint64, entryPoint uintptr, opaque uintptr) int64

// SetTimer arms the next supervisor timer interrupt for this hart at the
// given absolute mtime value, the Timer extension's sbi_set_timer call
// the scheduler's ArmTimer hook resolves to.
//
//go:linkname SetTimer sbi_set_timer
//go:nosplit
func SetTimer(absoluteTimeValue uint64)

// Shutdown powers the machine off via the System Reset extension,
// called once the process table is empty (spec.md §4.5's shutdown
// trigger).
//
//go:linkname Shutdown sbi_shutdown
//go:nosplit
func Shutdown()

// NumberOfHarts returns how many harts the platform exposes, the Hart
// State Management extension query kernel_init uses before deciding how
// many secondary harts to bring up with StartHart.
//
//go:linkname NumberOfHarts sbi_hart_get_number
//go:nosplit
func NumberOfHarts() uint64

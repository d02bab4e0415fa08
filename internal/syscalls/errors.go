// Package syscalls implements the numbered syscall dispatch table and
// userspace-pointer validator of spec.md §4.7, grounded directly on
// original_source's kernel/src/syscalls/handler.rs (SyscallHandler's
// sys_* methods map one-to-one onto Handler's methods here) and
// src/common/src/syscalls for the typed error shape. Rust's
// RefToPointer/UserspaceArgument generic marshaling (ref_conversion.rs)
// has no Go analogue worth keeping: Go syscalls read raw values straight
// out of the trap frame's a0-a5 ABI slots and validate pointers
// explicitly, which is both simpler and exactly how the teacher's own
// mazboot syscall.go reads its arguments.
package syscalls

import "errors"

// ErrInvalidProgram mirrors SysExecuteError::InvalidProgram.
var ErrInvalidProgram = errors.New("syscalls: no program with that name")

// ErrInvalidPid mirrors SysWaitError::InvalidPid.
var ErrInvalidPid = errors.New("syscalls: no process with that pid")

// ErrPortAlreadyUsed mirrors SysSocketError::PortAlreadyUsed.
var ErrPortAlreadyUsed = errors.New("syscalls: udp port already in use")

// ErrNoReceiveIPYet mirrors SysSocketError::NoReceiveIPYet: a socket
// cannot send until it has received at least one packet, since the
// destination address is learned from the first received datagram.
var ErrNoReceiveIPYet = errors.New("syscalls: socket has not received a packet yet")

// ErrInvalidPointer is returned (as a negative status, not an error
// value visible to the caller's registers) whenever a userspace pointer
// argument fails validation.
var ErrInvalidPointer = errors.New("syscalls: userspace pointer failed validation")

// Number identifies one of the 12 syscalls of spec.md §4.7.
type Number uintptr

const (
	PrintPrograms Number = iota + 1
	Panic
	WriteChar
	ReadInput
	ReadInputWait
	Exit
	Execute
	Wait
	MmapPages
	OpenUDPSocket
	WriteUDPSocket
	ReadUDPSocket
)

// Package trapframe defines the architectural register save area described
// in spec.md §4.4: 32 integer registers followed by 32 floating point
// registers, contiguous and laid out the way the trap entry assembly
// stub expects (no Go-chosen padding between the two arrays). Grounded on
// the teacher kernel's ExceptionInfo/Register handling in exceptions.go,
// generalized from AArch64's named CSR snapshot to RISC-V's flat
// general-purpose register file, and on original_source's
// kernel/src/interrupts/trap.rs TrapFrame/Register/Index design, which
// this package follows closely since RISC-V's ABI register names are part
// of the platform contract, not an implementation choice.
package trapframe

import "fmt"

// Register names an x0-x31 general purpose register by its RISC-V ABI
// role, matching the original kernel's Register enum field for field.
type Register int

const (
	Zero Register = iota
	RA
	SP
	GP
	TP
	T0
	T1
	T2
	S0
	S1
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11
	T3
	T4
	T5
	T6
	numRegisters
)

var registerNames = [numRegisters]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0/fp", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

func (r Register) String() string {
	if r < 0 || int(r) >= len(registerNames) {
		return fmt.Sprintf("Register(%d)", int(r))
	}
	return registerNames[r]
}

// TrapFrame is the C-layout register save area the trap entry stub saves
// into and restores from. Registers holds x0..x31; FloatingRegisters
// holds f0..f31. One kernel trap frame exists per hart; one process trap
// frame is owned by each Process (spec.md §3).
type TrapFrame struct {
	Registers         [32]uintptr
	FloatingRegisters [32]uintptr
}

// Get reads register r.
func (tf *TrapFrame) Get(r Register) uintptr {
	return tf.Registers[r]
}

// Set writes register r.
func (tf *TrapFrame) Set(r Register, value uintptr) {
	tf.Registers[r] = value
}

// SyscallNumber and SyscallArg read the RISC-V syscall ABI's a7 (number)
// and a0-a5 (arguments) slots, the convention handle_syscall relies on.
func (tf *TrapFrame) SyscallNumber() uintptr { return tf.Get(A7) }

func (tf *TrapFrame) SyscallArg(n int) uintptr {
	switch n {
	case 0:
		return tf.Get(A0)
	case 1:
		return tf.Get(A1)
	case 2:
		return tf.Get(A2)
	case 3:
		return tf.Get(A3)
	case 4:
		return tf.Get(A4)
	case 5:
		return tf.Get(A5)
	default:
		panic(fmt.Sprintf("trapframe: SyscallArg: index %d out of range", n))
	}
}

// SetReturn writes a syscall's single return value into a0, the spot a
// resumed process expects its result.
func (tf *TrapFrame) SetReturn(value uintptr) {
	tf.Set(A0, value)
}

// String renders every register, one per line, for panic banners -- the
// Go analogue of the original TrapFrame's Debug impl.
func (tf *TrapFrame) String() string {
	s := "TrapFrame[\n"
	for i, v := range tf.Registers {
		s += fmt.Sprintf("  x%d\t(%s):\t0x%x\n", i, Register(i), v)
	}
	s += "]"
	return s
}

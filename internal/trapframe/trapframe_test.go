package trapframe

import "testing"

func TestGetSetRoundTrip(t *testing.T) {
	var tf TrapFrame
	tf.Set(A0, 0x42)
	if got := tf.Get(A0); got != 0x42 {
		t.Fatalf("got %#x, want 0x42", got)
	}
}

func TestSyscallArgMatchesABISlots(t *testing.T) {
	var tf TrapFrame
	tf.Set(A7, 7) // syscall number
	tf.Set(A0, 1)
	tf.Set(A1, 2)
	tf.Set(A5, 6)

	if got := tf.SyscallNumber(); got != 7 {
		t.Fatalf("SyscallNumber() = %d, want 7", got)
	}
	if got := tf.SyscallArg(0); got != 1 {
		t.Fatalf("SyscallArg(0) = %d, want 1", got)
	}
	if got := tf.SyscallArg(5); got != 6 {
		t.Fatalf("SyscallArg(5) = %d, want 6", got)
	}
}

func TestSetReturnWritesA0(t *testing.T) {
	var tf TrapFrame
	tf.SetReturn(99)
	if got := tf.Get(A0); got != 99 {
		t.Fatalf("got %#x, want 99", got)
	}
}

func TestRegisterStringMatchesABIName(t *testing.T) {
	if got := SP.String(); got != "sp" {
		t.Fatalf("got %q, want sp", got)
	}
	if got := S0.String(); got != "s0/fp" {
		t.Fatalf("got %q, want s0/fp", got)
	}
}

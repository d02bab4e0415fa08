// Package uart drives the QEMU virt machine's 16550-compatible UART,
// the console every boot message and read_input/write_char syscall
// passes through. Grounded on original_source's kernel/src/io/uart.rs
// (QEMU_UART, a fixed MMIO base with THR/RBR/LSR registers) and the
// teacher's own mmio_read/mmio_write go:linkname pattern in kernel.go,
// translated from the teacher's BCM2835 PL011 register set to the
// 16550's. Like internal/cpu, internal/riscv, and internal/trap, this
// file touches real hardware registers with no Go body behind them, so
// it carries no test file.
package uart

import _ "unsafe"

// baseAddr is QEMU's virt machine ns16550 UART0 MMIO base.
const baseAddr = 0x1000_0000

const (
	regTHR = 0 // transmit holding register (write)
	regRBR = 0 // receive buffer register (read)
	regLSR = 5 // line status register
)

const (
	lsrDataReady      = 1 << 0
	lsrTransmitHoldEmpty = 1 << 5
)

//go:linkname mmioRead8 mmio_read8
//go:nosplit
func mmioRead8(addr uintptr) uint8

//go:linkname mmioWrite8 mmio_write8
//go:nosplit
func mmioWrite8(addr uintptr, value uint8)

// Driver is the live 16550 UART console.
type Driver struct{}

// New returns a Driver ready to use; the 16550 needs no register
// initialization sequence under QEMU's virt machine (it starts
// pre-configured by firmware), unlike the teacher's PL011 which needs
// baud rate/FIFO setup.
func New() *Driver { return &Driver{} }

// WriteByte blocks until the transmit holding register is empty, then
// writes one byte, implementing syscalls.Console.
func (d *Driver) WriteByte(b byte) {
	for mmioRead8(baseAddr+regLSR)&lsrTransmitHoldEmpty == 0 {
	}
	mmioWrite8(baseAddr+regTHR, b)
}

// Write implements io.Writer so klog can log straight to the console.
func (d *Driver) Write(p []byte) (int, error) {
	for _, b := range p {
		d.WriteByte(b)
	}
	return len(p), nil
}

// ReadByte returns the next received byte and true if the receiver has
// data ready, or (0, false) otherwise -- the PLIC-driven IRQ handler's
// non-blocking poll.
func (d *Driver) ReadByte() (byte, bool) {
	if mmioRead8(baseAddr+regLSR)&lsrDataReady == 0 {
		return 0, false
	}
	return mmioRead8(baseAddr + regRBR), true
}

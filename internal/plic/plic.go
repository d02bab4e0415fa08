// Package plic drives QEMU's virt-machine Platform-Level Interrupt
// Controller, the collaborator plic::init_uart_interrupt(hart_id) names
// in kernel_init: routing the UART's interrupt line to a hart's S-mode
// context so a byte arriving at the console raises a
// riscv.IntSupervisorExternal trap instead of sitting unclaimed.
// Grounded on the same go:linkname MMIO boundary internal/uart uses,
// widened to 32-bit registers for the PLIC's wider register file; the
// register layout itself (priority array, per-context enable bitmap,
// threshold/claim pair) is the standard SiFive PLIC QEMU's virt machine
// exposes, the same controller referenced for the UART IRQ in
// original_source's interrupt setup.
package plic

import _ "unsafe"

// base is QEMU's virt machine PLIC MMIO base.
const base = 0x0c00_0000

// UARTIRQ is the interrupt line QEMU wires UART0 to on the virt machine.
const UARTIRQ = 10

const (
	priorityBase = 0x0000 // 4 bytes per IRQ, indexed by IRQ number
	pendingBase  = 0x1000
	enableBase   = 0x2000 // 0x80 bytes per context, one bit per IRQ
	contextBase  = 0x20_0000
	contextSize  = 0x1000
	thresholdOff = 0x0000
	claimOff     = 0x0004
)

//go:linkname mmioRead32 mmio_read32
//go:nosplit
func mmioRead32(addr uintptr) uint32

//go:linkname mmioWrite32 mmio_write32
//go:nosplit
func mmioWrite32(addr uintptr, value uint32)

// sContextID is the S-mode context index for hartID, matching QEMU
// virt's convention of two contexts per hart (M-mode at 2*hartID,
// S-mode at 2*hartID+1).
func sContextID(hartID uint64) uint64 { return 2*hartID + 1 }

// EnableUART routes UARTIRQ to hartID's S-mode context: gives it nonzero
// priority, sets its enable bit for that context, and lowers the
// context's threshold so priority-1 interrupts are not masked.
func EnableUART(hartID uint64) {
	mmioWrite32(base+priorityBase+4*UARTIRQ, 1)

	ctx := sContextID(hartID)
	enableAddr := base + enableBase + uintptr(ctx)*0x80
	wordAddr := enableAddr + uintptr(UARTIRQ/32)*4
	bit := uint32(1) << uint(UARTIRQ%32)
	mmioWrite32(wordAddr, mmioRead32(wordAddr)|bit)

	thresholdAddr := base + contextBase + uintptr(ctx)*contextSize + thresholdOff
	mmioWrite32(thresholdAddr, 0)
}

// Claim returns the highest-priority pending interrupt for hartID's
// S-mode context, or 0 if none is pending, and implicitly marks it "in
// service" until Complete is called.
func Claim(hartID uint64) uint32 {
	ctx := sContextID(hartID)
	return mmioRead32(base + contextBase + uintptr(ctx)*contextSize + claimOff)
}

// Complete tells the PLIC hartID's S-mode context has finished handling
// irq, the write-back half of the claim/complete protocol.
func Complete(hartID uint64, irq uint32) {
	ctx := sContextID(hartID)
	mmioWrite32(base+contextBase+uintptr(ctx)*contextSize+claimOff, irq)
}

// Command kernel is the entry point boot.s calls once the hart has left
// machine mode and handed control to supervisor-mode Go: it is the Go
// analogue of original_source's kernel_init, following that function's
// sequence step for step (UART, SBI version, device tree, page
// allocator, heap, kernel page table, PCI enumeration, scheduler/process
// table, PLIC wiring, virtio-net bring-up, syscall and trap handlers,
// secondary harts, then enabling interrupts and idling). Like the teacher's kernel.go, KernelInit is marked noinline so
// the linker keeps it even though boot.s calls it by symbol rather than
// through a Go call site, and main() exists only so `go build` has
// something to link -- it is never executed on real hardware.
package main

import (
	"fmt"
	"unsafe"

	gvlog "gvisor.dev/gvisor/pkg/log"

	"github.com/sysheap/yaos/internal/cpu"
	"github.com/sysheap/yaos/internal/fdt"
	"github.com/sysheap/yaos/internal/heap"
	"github.com/sysheap/yaos/internal/image"
	"github.com/sysheap/yaos/internal/klog"
	"github.com/sysheap/yaos/internal/layout"
	"github.com/sysheap/yaos/internal/netstack"
	"github.com/sysheap/yaos/internal/pagealloc"
	"github.com/sysheap/yaos/internal/pci"
	"github.com/sysheap/yaos/internal/plic"
	"github.com/sysheap/yaos/internal/process"
	"github.com/sysheap/yaos/internal/riscv"
	"github.com/sysheap/yaos/internal/sbi"
	"github.com/sysheap/yaos/internal/sched"
	"github.com/sysheap/yaos/internal/stdin"
	"github.com/sysheap/yaos/internal/syscalls"
	"github.com/sysheap/yaos/internal/timer"
	"github.com/sysheap/yaos/internal/trap"
	"github.com/sysheap/yaos/internal/trapframe"
	"github.com/sysheap/yaos/internal/uart"
	"github.com/sysheap/yaos/internal/virtio"
	"github.com/sysheap/yaos/internal/vm"
)

// Physical RAM layout for QEMU's virt machine: RAM starts at 0x8000_0000,
// OpenSBI/the bootloader occupy the first 2 MiB, so the kernel image and
// everything it manages lives from 0x8020_0000 up.
const (
	ramBase = 0x8000_0000
	ramSize = 128 * 1024 * 1024
)

var (
	console     *uart.Driver
	frames      *pagealloc.Allocator
	kernelTable *vm.PageTable
	scheduler   *sched.Scheduler
	hart        *cpu.CPU
	stdinBuf    *stdin.Buffer
	netStack    *stackAdapter
	netDevice   *virtio.NetworkDevice
	kernelHeap  *heap.Heap
	trapHandler *trap.Handler
	bootHartID  uint64

	timerArmed bool
)

// HandleTrap is the symbol the trap entry assembly stub calls by name
// after saving registers into tf, the Go side of spec.md's trap entry
// this module's assembly boundary is responsible for invoking.
//
//go:nosplit
func HandleTrap(cause riscv.Cause, stval, sepc uintptr, tf *trapframe.TrapFrame) {
	trapHandler.SupervisorModeTrap(cause, stval, sepc, tf)
}

// stackAdapter boxes *netstack.Stack's concrete *netstack.Socket return
// value as syscalls.UDPSocket, since Go does not let a concrete return
// type satisfy an interface-returning method by itself (OpenUDPSocket's
// signatures differ in that one respect only).
type stackAdapter struct{ stack *netstack.Stack }

func (a *stackAdapter) OpenUDPSocket(port uint16) (syscalls.UDPSocket, error) {
	return a.stack.OpenUDPSocket(port)
}

// schedulerWaker adapts sched.Scheduler's table lookup to stdin.Waker.
type schedulerWaker struct{ s *sched.Scheduler }

func (w schedulerWaker) Lookup(pid process.Pid) (*process.Process, bool) {
	return w.s.Table().Lookup(pid)
}

func mustAllocPage() uintptr {
	pa, ok := frames.AllocPage()
	if !ok {
		panic("kernel: out of physical memory during boot")
	}
	return pa
}

func identityMap(va, size uintptr, perm vm.Perm) {
	if err := kernelTable.Map(va, va, size, perm, vm.Kernel); err != nil {
		panic(fmt.Sprintf("kernel: identityMap(%#x, %#x): %v", va, size, err))
	}
}

func alignUp(v, align uintptr) uintptr { return (v + align - 1) &^ (align - 1) }

func alignDown(v, align uintptr) uintptr { return v &^ (align - 1) }

//go:nosplit
//go:noinline
func KernelInit(hartID uintptr, deviceTreePointer uintptr) {
	bootHartID = uint64(hartID)
	console = uart.New()
	klog.Init(console, gvlog.Debug)

	klog.Infof("Hello World from YaOS!")
	klog.Infof("Device Tree Pointer: %#x", deviceTreePointer)

	major, minor := sbi.SpecVersion()
	klog.Infof("SBI version %d.%d", major, minor)
	if !(major > 0 || minor >= 2) {
		panic("kernel: unsupported SBI version, need >= 0.2")
	}

	numHarts := sbi.NumberOfHarts()
	klog.Infof("Number of cores: %d", numHarts)

	headerBuf := unsafeBytesAt(deviceTreePointer, 40)
	dtSize, err := fdt.PeekTotalSize(headerBuf)
	if err != nil {
		panic(fmt.Sprintf("kernel: reading device tree header: %v", err))
	}
	dtBlob := unsafeBytesAt(deviceTreePointer, uintptr(dtSize))
	if _, err := fdt.Parse(dtBlob); err != nil {
		panic(fmt.Sprintf("kernel: parsing device tree: %v", err))
	}
	dtEnd := alignUp(deviceTreePointer+uintptr(dtSize), vm.PageSize)

	sections := layout.Current(layout.Sections{
		TextStart: ramBase, TextEnd: ramBase + 0x20_0000,
	})
	arenaBase := alignUp(sections.TextEnd, vm.PageSize)
	if dtEnd > arenaBase {
		arenaBase = dtEnd
	}
	arenaSize := (ramBase + ramSize) - arenaBase

	frames, err = pagealloc.New(arenaBase, arenaSize)
	if err != nil {
		panic(fmt.Sprintf("kernel: initializing page allocator: %v", err))
	}
	klog.Infof("Page allocator: %d pages free", frames.FreePageCount())

	kernelHeap = heap.New(frames)

	kernelTable, err = vm.New(frames)
	if err != nil {
		panic(fmt.Sprintf("kernel: building kernel page table: %v", err))
	}
	identityMap(alignDown(sections.TextStart, vm.PageSize), sections.TextSize(), vm.PermRead|vm.PermExec)
	if sections.RodataEnd > sections.RodataStart {
		identityMap(sections.RodataStart, sections.RodataSize(), vm.PermRead)
	}
	if sections.DataEnd > sections.DataStart {
		identityMap(sections.DataStart, sections.DataSize(), vm.PermRead|vm.PermWrite)
	}
	identityMap(arenaBase, alignUp(arenaSize, vm.PageSize), vm.PermRead|vm.PermWrite)

	pciDevices := pci.Enumerate()
	var networkFunc *pci.Device
	for i := range pciDevices {
		d := pciDevices[i]
		klog.Debugf("pci: bus %d slot %d func %d vendor %#x device %#x",
			d.Bus, d.Slot, d.Func, d.VendorID, d.DeviceID)
		if d.IsVirtioNet() {
			networkFunc = &d
		}
	}

	scheduler = sched.New(sched.Hooks{
		ActivatePageTable: func(space *vm.AddressSpace) { riscv.WriteSatp(space.Table().Root()) },
		ActivateKernel:    func() { riscv.WriteSatp(kernelTable.Root()) },
		WriteSepc:         riscv.WriteSepc,
		SetInKernelMode:   func(v bool) { hart.SetInKernelMode(v) },
		ArmTimer: func(millis int) {
			timer.Arm(millis)
			timerArmed = true
		},
		DisableTimer: func() {
			timer.Disarm()
			timerArmed = false
		},
		IdleEntry: riscv.IdleLoopEntry,
		Shutdown:  sbi.Shutdown,
	})
	hart = cpu.New(scheduler)
	hart.SetSscratchToKernelTrapFrame()

	riscv.WriteSatp(kernelTable.Root())

	plic.EnableUART(uint64(hartID))

	stdinBuf = stdin.New()

	var netIface syscalls.NetStack
	if networkFunc != nil {
		netDevice = bringUpNetworkDevice(*networkFunc)
		if netDevice != nil {
			netStack = &stackAdapter{stack: netstack.New(netstack.MAC{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}, netstack.IPv4{10, 0, 2, 15}, netDevice)}
			netIface = netStack
		}
	}

	syscallHandler := &syscalls.Handler{
		Scheduler: scheduler,
		Frames:    frames,
		Stdin:     stdinBuf,
		Programs:  image.Embedded,
		Console:   console,
		Net:       netIface,
	}

	trapHandler = &trap.Handler{
		HandleSyscall: syscallHandler.Dispatch,
		HandleTimerInterrupt: func() {
			scheduler.Schedule(riscv.ReadSepc(), hart.InKernelMode())
			retargetSscratch()
		},
		HandleExternalIRQ: handleExternalIRQ,
		IsUserspaceAddress: func(addr uintptr) bool {
			space := scheduler.Current().AddressSpace()
			if space == nil {
				return false
			}
			_, ok := space.Table().Translate(addr)
			return ok
		},
		CurrentProcessSummary: func() string {
			current := scheduler.Current()
			return fmt.Sprintf("PID=%d NAME=%s STATE=%s", current.Pid(), current.Name(), current.State())
		},
		DumpKernelPageTables: kernelTable.Dump,
	}
	// sysPanic (syscall #2) halts the whole kernel through the same path
	// as an unhandled exception, wired here rather than at Handler
	// construction so it shares trapHandler's page-table dump and
	// backtrace collaborators.
	syscallHandler.Panic = trapHandler.Panic

	startOtherHarts(hartID, numHarts)

	klog.Infof("kernel_init done! Enabling interrupts")
	prepareForScheduling()
}

func retargetSscratch() {
	current := scheduler.Current()
	if current.Pid() == process.DummyPid {
		hart.SetSscratchToKernelTrapFrame()
		return
	}
	hart.SetSscratchToProcessTrapFrame(current.TrapFrame())
}

func handleExternalIRQ() {
	irq := plic.Claim(bootHartID)
	if irq == plic.UARTIRQ {
		for {
			b, ok := console.ReadByte()
			if !ok {
				break
			}
			result := stdinBuf.Push(b, schedulerWaker{scheduler}, timerArmed)
			if result.TimerWasDisabled {
				timer.Arm(10)
				timerArmed = true
			}
		}
		if netDevice != nil && netStack != nil {
			netDevice.PollReceive(func(frame []byte) { _ = netStack.stack.HandleFrame(frame) })
		}
	}
	plic.Complete(bootHartID, irq)
}

func bringUpNetworkDevice(dev pci.Device) *virtio.NetworkDevice {
	caps := virtio.FindCapabilities(dev)
	commonCap, ok := virtio.FindByType(caps, virtio.CapCommonCfg)
	if !ok {
		klog.Warningf("virtio-net device has no common-config capability, skipping")
		return nil
	}

	barAddr := dev.BAR0()
	identityMap(alignDown(barAddr, vm.PageSize), vm.PageSize, vm.PermRead|vm.PermWrite)

	rx := newQueueOnFreshPages()
	tx := newQueueOnFreshPages()

	netDev, err := virtio.Initialize(barAddr, commonCap.Offset, rx, tx)
	if err != nil {
		klog.Warningf("virtio-net initialization failed: %v", err)
		return nil
	}
	return netDev
}

func newQueueOnFreshPages() *virtio.Queue {
	descs := mustAllocPage()
	avail := mustAllocPage()
	used := mustAllocPage()
	var buffers [16]uintptr
	for i := range buffers {
		buffers[i] = mustAllocPage()
	}
	return virtio.NewQueue(descs, avail, used, buffers, vm.PageSize, nil)
}

func startOtherHarts(currentHartID uintptr, numHarts uint64) {
	for id := uint64(0); id < numHarts; id++ {
		if id == uint64(currentHartID) {
			continue
		}
		klog.Infof("Starting cpu %d", id)
		sbi.StartHart(id, riscv.SecondaryHartEntry(), uintptr(id))
	}
}

//go:nosplit
//go:noinline
func prepareForScheduling() {
	riscv.EnableSupervisorInterrupts()
	timer.Arm(0)
	timerArmed = true
	for {
		riscv.WaitForInterrupt()
	}
}

func unsafeBytesAt(addr uintptr, length uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length))
}

// Dummy main() so `go build` has a linkable package main; boot.s calls
// KernelInit directly by symbol and never executes this function.
func main() {
	KernelInit(0, 0)
	for {
	}
}

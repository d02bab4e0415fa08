// This file is the hardware boundary of the virtio package: actual
// register reads/writes against a mapped common-config BAR. Like
// internal/cpu, internal/riscv, and internal/trap, it is not unit
// tested -- there is no virtio device to drive outside qemu -- while
// capability.go's pure offset arithmetic is.
package virtio

import "unsafe"

// commonCfg mirrors virtio_pci_common_cfg field-for-field (field order
// is the wire layout, per the virtio spec and net/mod.rs's
// VirtioPciCommonCfg), read and written directly through the BAR's
// mapped address the same way the teacher's kernel.go treats any MMIO
// register: a plain offset into a live, non-cacheable memory region.
type commonCfg struct {
	DeviceFeatureSelect uint32
	DeviceFeature       uint32
	DriverFeatureSelect uint32
	DriverFeature       uint32
	ConfigMsixVector    uint16
	NumQueues           uint16
	DeviceStatus        uint8
	ConfigGeneration    uint8
	QueueSelect         uint16
	QueueSize           uint16
	QueueMsixVector     uint16
	QueueEnable         uint16
	QueueNotifyOff      uint16
	QueueDesc           uint64
	QueueDriver         uint64
	QueueDevice         uint64
}

const (
	statusAcknowledge = 1
	statusDriver      = 2
	statusDriverOK    = 4
	statusFeaturesOK  = 8

	featVersion1 = 1 << 32
	featNetMAC   = 1 << 5
)

// VirtQueue is the narrow descriptor-ring contract NetworkDevice drives;
// its DMA ring layout is a hardware concern this kernel delegates to a
// fixed-size ring allocated by the caller, mirroring VirtQueue::new in
// the original.
type VirtQueue interface {
	DescriptorAreaPhysAddr() uintptr
	DriverAreaPhysAddr() uintptr
	DeviceAreaPhysAddr() uintptr
	Size() uint16
	Send(frame []byte) error
	PollReceived(handle func(frame []byte))
}

// NetworkDevice drives one initialized virtio-net device's common
// configuration registers plus its receive and transmit virtqueues.
type NetworkDevice struct {
	cfg *commonCfg
	rx  VirtQueue
	tx  VirtQueue
}

// Initialize negotiates features and enables queues against a device
// whose common-config capability has already been located and mapped at
// barAddr+capOffset, following net/mod.rs's NetworkDevice::initialize
// status/feature negotiation sequence.
func Initialize(barAddr uintptr, capOffset uint32, rx, tx VirtQueue) (*NetworkDevice, error) {
	cfg := (*commonCfg)(unsafe.Pointer(barAddr + uintptr(capOffset)))

	cfg.DeviceStatus = 0

	cfg.DeviceStatus |= statusAcknowledge
	cfg.DeviceStatus |= statusDriver

	cfg.DeviceFeatureSelect = 0
	features := uint64(cfg.DeviceFeature)
	cfg.DeviceFeatureSelect = 1
	features |= uint64(cfg.DeviceFeature) << 32

	wanted := uint64(featVersion1 | featNetMAC)
	if features&wanted != wanted {
		return nil, errUnsupportedFeatures
	}

	cfg.DriverFeatureSelect = 0
	cfg.DriverFeature = uint32(wanted)
	cfg.DriverFeatureSelect = 1
	cfg.DriverFeature = uint32(wanted >> 32)

	cfg.DeviceStatus |= statusFeaturesOK
	if cfg.DeviceStatus&statusFeaturesOK == 0 {
		return nil, errFeaturesNotAccepted
	}

	cfg.QueueSelect = 0
	cfg.QueueDesc = uint64(rx.DescriptorAreaPhysAddr())
	cfg.QueueDriver = uint64(rx.DriverAreaPhysAddr())
	cfg.QueueDevice = uint64(rx.DeviceAreaPhysAddr())
	cfg.QueueEnable = 1

	cfg.QueueSelect = 1
	cfg.QueueDesc = uint64(tx.DescriptorAreaPhysAddr())
	cfg.QueueDriver = uint64(tx.DriverAreaPhysAddr())
	cfg.QueueDevice = uint64(tx.DeviceAreaPhysAddr())
	cfg.QueueEnable = 1

	cfg.DeviceStatus |= statusDriverOK

	return &NetworkDevice{cfg: cfg, rx: rx, tx: tx}, nil
}

// Reset resets the device, the Drop impl's teardown in the original.
func (d *NetworkDevice) Reset() {
	d.cfg.DeviceStatus = 0
}

// SendFrame implements netstack.FrameSender by handing frame to the tx
// queue.
func (d *NetworkDevice) SendFrame(frame []byte) error {
	return d.tx.Send(frame)
}

// PollReceive drains whatever frames have arrived on the rx queue since
// the last call, handing each to handle (normally a wrapper around
// netstack.Stack.HandleFrame). Called from the external-interrupt path
// whenever the PLIC reports the UART interrupt; this device's own
// interrupt line is not enabled at the PLIC.
func (d *NetworkDevice) PollReceive(handle func(frame []byte)) {
	d.rx.PollReceived(handle)
}

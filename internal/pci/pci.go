// Package pci enumerates PCI Express devices through QEMU's memory-mapped
// ECAM configuration space, grounded on the teacher's pci_qemu.go
// (pciConfigRead32's bus<<20 | slot<<15 | func<<12 | offset formula and
// its vendor/device ID scan loop), translated from that file's AArch64
// virt-machine constants to the RISC-V virt machine's identical default
// ECAM base. enumerate_devices in kernel_init is the call site this
// package exists to serve: find the virtio-net function and hand its
// config space to internal/virtio's capability walk.
package pci

import _ "unsafe"

// ecamBase is QEMU's default PCIe ECAM base for both its AArch64 and
// RISC-V virt machines.
const ecamBase = 0x3000_0000

const (
	offVendorID = 0x00
	offDeviceID = 0x02
	offBar0     = 0x10
)

const (
	virtioVendorID  = 0x1af4
	virtioNetLegacy = 0x1000
	virtioNetModern = 0x1041
)

//go:linkname mmioRead32 mmio_read32
//go:nosplit
func mmioRead32(addr uintptr) uint32

// Device describes one function discovered on the bus, along with the
// base address of its own configuration space for further probing
// (capability walk, BAR decoding).
type Device struct {
	Bus, Slot, Func    uint8
	VendorID, DeviceID uint16
	ConfigBase         uintptr
}

// IsVirtioNet reports whether this function is a legacy or modern
// virtio-net device, the case kernel_init's network bring-up cares about.
func (d Device) IsVirtioNet() bool {
	return d.VendorID == virtioVendorID && (d.DeviceID == virtioNetLegacy || d.DeviceID == virtioNetModern)
}

// BAR0 reads and masks this function's base address register 0, dropping
// the low type/prefetch bits the way findBochsDisplay's fbAddr derivation
// does.
func (d Device) BAR0() uintptr {
	raw := Read32(d.ConfigBase, offBar0)
	return uintptr(raw &^ 0xF)
}

// Read8 and Read32 read registers relative to this device's own config
// space, satisfying internal/virtio's ConfigSpace interface so
// virtio.FindCapabilities can walk this device's capability list
// directly.
func (d Device) Read8(offset uint32) uint8   { return Read8(d.ConfigBase, offset) }
func (d Device) Read32(offset uint32) uint32 { return Read32(d.ConfigBase, offset) }

func configAddress(bus, slot, fn uint8, offset uint32) uintptr {
	return ecamBase +
		uintptr(bus)<<20 +
		uintptr(slot)<<15 +
		uintptr(fn)<<12 +
		uintptr(offset&^0x3)
}

// Read32 reads one 32-bit register at offset within the function whose
// config space starts at base, the low-level access internal/virtio's
// ConfigSpace interface is built on.
func Read32(base uintptr, offset uint32) uint32 {
	return mmioRead32(base + uintptr(offset&^0x3))
}

// Read8 reads a single byte out of the 32-bit word containing offset,
// satisfying internal/virtio's ConfigSpace interface for capability byte
// fields (cap_vndr, cap_next, cfg_type, bar).
func Read8(base uintptr, offset uint32) uint8 {
	word := Read32(base, offset&^0x3)
	shift := (offset & 0x3) * 8
	return uint8(word >> shift)
}

// Enumerate scans bus 0's 32 slots and 8 functions each for devices with
// a valid vendor ID, mirroring findBochsDisplay's loop nest but
// collecting every function instead of searching for one vendor/device
// pair.
func Enumerate() []Device {
	var devices []Device
	for slot := uint8(0); slot < 32; slot++ {
		for fn := uint8(0); fn < 8; fn++ {
			base := configAddress(0, slot, fn, 0)
			vendorID := uint16(Read32(base, offVendorID) & 0xFFFF)
			if vendorID == 0xFFFF || vendorID == 0 {
				continue
			}
			deviceID := uint16(Read32(base, offDeviceID) & 0xFFFF)
			devices = append(devices, Device{
				Bus: 0, Slot: slot, Func: fn,
				VendorID: vendorID, DeviceID: deviceID,
				ConfigBase: base,
			})
		}
	}
	return devices
}

// Package virtio implements the PCI capability walk a virtio-net device
// needs before its registers can be mapped, grounded on
// original_source's kernel/src/drivers/virtio/capability.rs (the
// virtio_pci_cap layout and cfg_type constants) and the teacher's own
// pci_qemu.go (ECAM-style ConfigSpace access by 32-bit reads at a
// byte offset, rather than a packed-struct MMIO overlay).
package virtio

// Capability cfg_type values (virtio_pci_cap.cfg_type), unchanged from
// the original's constants.
const (
	CapCommonCfg = 1
	CapNotifyCfg = 2
	CapISRCfg    = 3
	CapDeviceCfg = 4
	CapPCICfg    = 5
	CapSharedMem = 8
	CapVendor    = 9

	vendorSpecificCapabilityID = 0x9
	pciCapabilitiesPointerOff  = 0x34 // standard PCI capabilities list pointer
)

// ConfigSpace reads a device's PCI configuration space by byte offset,
// the narrow collaborator capability discovery needs -- implemented by
// an ECAM-backed reader at boot, and by a plain byte slice in tests.
type ConfigSpace interface {
	Read8(offset uint32) uint8
	Read32(offset uint32) uint32
}

// Capability is one parsed virtio_pci_cap entry.
type Capability struct {
	CfgType uint8
	Bar     uint8
	Offset  uint32
	Length  uint32
}

// FindCapabilities walks the PCI capabilities linked list (the
// cap_next chain starting at the capabilities pointer) and returns every
// entry whose vendor-specific capability id marks it as a virtio
// capability, mirroring capabilities().filter(id == VENDOR_SPECIFIC).
func FindCapabilities(cfg ConfigSpace) []Capability {
	var caps []Capability

	next := uint32(cfg.Read8(pciCapabilitiesPointerOff))
	seen := make(map[uint32]bool)
	for next != 0 && !seen[next] {
		seen[next] = true

		capID := cfg.Read8(next)
		capNext := cfg.Read8(next + 1)

		if capID == vendorSpecificCapabilityID {
			caps = append(caps, Capability{
				CfgType: cfg.Read8(next + 3),
				Bar:     cfg.Read8(next + 4),
				Offset:  cfg.Read32(next + 8),
				Length:  cfg.Read32(next + 12),
			})
		}

		next = uint32(capNext)
	}
	return caps
}

// FindByType returns the first capability of the given cfg_type, if
// any, matching find(cap.cfg_type() == wanted).
func FindByType(caps []Capability, wanted uint8) (Capability, bool) {
	for _, c := range caps {
		if c.CfgType == wanted {
			return c, true
		}
	}
	return Capability{}, false
}

package virtio

import "testing"

// fakeConfigSpace is a plain byte slice standing in for a device's PCI
// configuration space, indexed exactly as ECAM reads would index it.
type fakeConfigSpace []byte

func (f fakeConfigSpace) Read8(offset uint32) uint8 { return f[offset] }
func (f fakeConfigSpace) Read32(offset uint32) uint32 {
	return uint32(f[offset]) | uint32(f[offset+1])<<8 | uint32(f[offset+2])<<16 | uint32(f[offset+3])<<24
}

// buildConfigSpace lays out a capabilities pointer at 0x34 pointing to a
// single virtio vendor-specific capability at offset 0x40.
func buildConfigSpace(cfgType, bar uint8, offset, length uint32) fakeConfigSpace {
	cfg := make(fakeConfigSpace, 0x60)
	cfg[pciCapabilitiesPointerOff] = 0x40

	capStart := uint32(0x40)
	cfg[capStart+0] = vendorSpecificCapabilityID // cap_vndr
	cfg[capStart+1] = 0                          // cap_next: end of list
	cfg[capStart+2] = 16                         // cap_len
	cfg[capStart+3] = cfgType
	cfg[capStart+4] = bar
	putU32(cfg, capStart+8, offset)
	putU32(cfg, capStart+12, length)
	return cfg
}

func putU32(cfg fakeConfigSpace, offset, value uint32) {
	cfg[offset] = byte(value)
	cfg[offset+1] = byte(value >> 8)
	cfg[offset+2] = byte(value >> 16)
	cfg[offset+3] = byte(value >> 24)
}

func TestFindCapabilitiesFindsVendorSpecificEntry(t *testing.T) {
	cfg := buildConfigSpace(CapCommonCfg, 2, 0x1000, 0x38)

	caps := FindCapabilities(cfg)
	if len(caps) != 1 {
		t.Fatalf("got %d capabilities, want 1", len(caps))
	}
	if caps[0].CfgType != CapCommonCfg || caps[0].Bar != 2 || caps[0].Offset != 0x1000 || caps[0].Length != 0x38 {
		t.Fatalf("got %+v, unexpected fields", caps[0])
	}
}

func TestFindByTypeReturnsFalseWhenAbsent(t *testing.T) {
	cfg := buildConfigSpace(CapCommonCfg, 2, 0x1000, 0x38)
	caps := FindCapabilities(cfg)

	if _, ok := FindByType(caps, CapDeviceCfg); ok {
		t.Fatal("expected no device-cfg capability to be found")
	}
}

func TestFindCapabilitiesStopsAtEmptyList(t *testing.T) {
	cfg := make(fakeConfigSpace, 0x40)
	cfg[pciCapabilitiesPointerOff] = 0

	if caps := FindCapabilities(cfg); len(caps) != 0 {
		t.Fatalf("got %d capabilities, want 0", len(caps))
	}
}

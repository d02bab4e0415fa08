package bitfield

import "testing"

type pageFlags struct {
	Valid bool   `bitfield:",1"`
	Read  bool   `bitfield:",1"`
	Write bool   `bitfield:",1"`
	Exec  bool   `bitfield:",1"`
	User  bool   `bitfield:",1"`
	Glob  bool   `bitfield:",1"`
	PPN   uint64 `bitfield:",44"`
}

func TestPackUnpackRoundTrip(t *testing.T) {
	in := pageFlags{Valid: true, Write: true, User: true, PPN: 0x1234}
	packed, err := Pack(in, &Config{NumBits: 54})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	var out pageFlags
	if err := Unpack(packed, &out); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestPackRejectsOversizedField(t *testing.T) {
	type bad struct {
		Too uint64 `bitfield:",2"`
	}
	_, err := Pack(bad{Too: 7}, nil)
	if err == nil {
		t.Fatal("expected error for field value exceeding bit width")
	}
}

func TestPackRejectsTotalOverflow(t *testing.T) {
	_, err := Pack(pageFlags{PPN: 1}, &Config{NumBits: 8})
	if err == nil {
		t.Fatal("expected error when packed bits exceed NumBits")
	}
}

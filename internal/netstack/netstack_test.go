package netstack

import (
	"encoding/binary"
	"testing"
)

type recordingSender struct {
	frames [][]byte
}

func (r *recordingSender) SendFrame(frame []byte) error {
	r.frames = append(r.frames, append([]byte(nil), frame...))
	return nil
}

func buildIncomingUDPFrame(srcMAC MAC, srcIP IPv4, srcPort uint16, dstIP IPv4, dstPort uint16, payload []byte) []byte {
	udpLen := 8 + len(payload)
	udp := make([]byte, udpLen)
	binary.BigEndian.PutUint16(udp[0:2], srcPort)
	binary.BigEndian.PutUint16(udp[2:4], dstPort)
	binary.BigEndian.PutUint16(udp[4:6], uint16(udpLen))
	copy(udp[8:], payload)

	ipLen := 20 + udpLen
	ip := make([]byte, ipLen)
	ip[0] = 0x45
	binary.BigEndian.PutUint16(ip[2:4], uint16(ipLen))
	ip[9] = protoUDP
	copy(ip[12:16], srcIP[:])
	copy(ip[16:20], dstIP[:])
	copy(ip[20:], udp)

	frame := make([]byte, 14+ipLen)
	copy(frame[6:12], srcMAC[:])
	binary.BigEndian.PutUint16(frame[12:14], etherTypeIPv4)
	copy(frame[14:], ip)
	return frame
}

func TestOpenUDPSocketRejectsDuplicatePort(t *testing.T) {
	stack := New(MAC{1, 2, 3, 4, 5, 6}, IPv4{10, 0, 0, 1}, &recordingSender{})

	if _, err := stack.OpenUDPSocket(4000); err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := stack.OpenUDPSocket(4000); err != ErrPortAlreadyUsed {
		t.Fatalf("got %v, want ErrPortAlreadyUsed", err)
	}
}

func TestHandleFrameDeliversUDPToBoundSocket(t *testing.T) {
	stack := New(MAC{1, 2, 3, 4, 5, 6}, IPv4{10, 0, 0, 1}, &recordingSender{})
	sock, err := stack.OpenUDPSocket(4000)
	if err != nil {
		t.Fatalf("OpenUDPSocket: %v", err)
	}

	frame := buildIncomingUDPFrame(MAC{9, 9, 9, 9, 9, 9}, IPv4{10, 0, 0, 2}, 5000, IPv4{10, 0, 0, 1}, 4000, []byte("hello"))
	if err := stack.HandleFrame(frame); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}

	buf := make([]byte, 16)
	n, err := sock.Recv(buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("got %q, want hello", buf[:n])
	}
}

func TestSendFailsBeforeFirstReceive(t *testing.T) {
	stack := New(MAC{1, 2, 3, 4, 5, 6}, IPv4{10, 0, 0, 1}, &recordingSender{})
	sock, err := stack.OpenUDPSocket(4000)
	if err != nil {
		t.Fatalf("OpenUDPSocket: %v", err)
	}

	if err := sock.Send([]byte("x")); err != ErrNoReceiveIPYet {
		t.Fatalf("got %v, want ErrNoReceiveIPYet", err)
	}
}

func TestSendAfterReceiveTransmitsFrame(t *testing.T) {
	sender := &recordingSender{}
	stack := New(MAC{1, 2, 3, 4, 5, 6}, IPv4{10, 0, 0, 1}, sender)
	sock, err := stack.OpenUDPSocket(4000)
	if err != nil {
		t.Fatalf("OpenUDPSocket: %v", err)
	}

	frame := buildIncomingUDPFrame(MAC{9, 9, 9, 9, 9, 9}, IPv4{10, 0, 0, 2}, 5000, IPv4{10, 0, 0, 1}, 4000, []byte("ping"))
	if err := stack.HandleFrame(frame); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}

	if err := sock.Send([]byte("pong")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.frames) != 1 {
		t.Fatalf("got %d frames sent, want 1", len(sender.frames))
	}
}

func TestCloseUDPSocketFreesPortForReuse(t *testing.T) {
	stack := New(MAC{1, 2, 3, 4, 5, 6}, IPv4{10, 0, 0, 1}, &recordingSender{})
	if _, err := stack.OpenUDPSocket(4000); err != nil {
		t.Fatalf("OpenUDPSocket: %v", err)
	}
	stack.CloseUDPSocket(4000)

	if _, err := stack.OpenUDPSocket(4000); err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
}

// Package netstack implements the minimal Ethernet/ARP/IPv4/UDP stack
// behind the open_udp_socket/write_udp_socket/read_udp_socket syscalls
// of spec.md §4.7. There is no example-pack repo that hand-rolls a
// userspace-visible netstack (the teacher has no networking at all; the
// original's own UDP support lived almost entirely in userspace crates
// not present in the retrieval pack), so this package is grounded on
// spec.md's described semantics directly: a socket cannot send until it
// has learned a destination from an inbound datagram, matching
// ErrNoReceiveIPYet's name.
package netstack

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrPortAlreadyUsed = errors.New("netstack: udp port already in use")
var ErrNoReceiveIPYet = errors.New("netstack: socket has not received a packet yet")

const (
	etherTypeARP  = 0x0806
	etherTypeIPv4 = 0x0800
	arpOpRequest  = 1
	arpOpReply    = 2
	protoUDP      = 17
)

// MAC is a 6-byte Ethernet hardware address.
type MAC [6]byte

func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IPv4 is a 4-byte IPv4 address.
type IPv4 [4]byte

func (a IPv4) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

// Endpoint identifies a remote peer a socket sends to / receives from.
type Endpoint struct {
	Addr IPv4
	Port uint16
}

// FrameSender transmits one raw Ethernet frame, implemented by a
// virtio.NetworkDevice at boot and by a recording fake in tests.
type FrameSender interface {
	SendFrame(frame []byte) error
}

// Stack owns this host's link/network identity, its ARP cache, and the
// table of open UDP sockets.
type Stack struct {
	mac MAC
	ip  IPv4

	sender FrameSender
	arp    map[IPv4]MAC

	sockets map[uint16]*Socket
}

// New returns a stack bound to the given hardware/IP identity, sending
// frames through sender.
func New(mac MAC, ip IPv4, sender FrameSender) *Stack {
	return &Stack{
		mac:     mac,
		ip:      ip,
		sender:  sender,
		arp:     make(map[IPv4]MAC),
		sockets: make(map[uint16]*Socket),
	}
}

// OpenUDPSocket binds a new socket to localPort, failing if the port is
// already bound -- the open_udp_socket syscall's sole external
// collaborator call.
func (s *Stack) OpenUDPSocket(localPort uint16) (*Socket, error) {
	if _, taken := s.sockets[localPort]; taken {
		return nil, ErrPortAlreadyUsed
	}
	sock := &Socket{stack: s, localPort: localPort}
	s.sockets[localPort] = sock
	return sock, nil
}

// CloseUDPSocket releases localPort so it can be bound again. The process
// exit path does not call it, so a port stays bound after the process
// that opened it exits.
func (s *Stack) CloseUDPSocket(localPort uint16) {
	delete(s.sockets, localPort)
}

// HandleFrame is the receive path: called for every frame the device
// delivers when the external-interrupt path polls its rx queue. ARP requests are answered directly;
// ARP replies update the cache; UDP datagrams are queued on the matching
// open socket, if any, and record the sender's address so the socket
// can later Send back without the process having specified one (the
// no-destination-until-first-receive model spec.md §4.7 describes).
func (s *Stack) HandleFrame(frame []byte) error {
	if len(frame) < 14 {
		return fmt.Errorf("netstack: frame too short (%d bytes)", len(frame))
	}
	etherType := binary.BigEndian.Uint16(frame[12:14])
	payload := frame[14:]

	switch etherType {
	case etherTypeARP:
		return s.handleARP(frame[6:12], payload)
	case etherTypeIPv4:
		return s.handleIPv4(payload)
	default:
		return nil
	}
}

func (s *Stack) handleARP(srcMAC []byte, payload []byte) error {
	if len(payload) < 28 {
		return fmt.Errorf("netstack: ARP packet too short")
	}
	op := binary.BigEndian.Uint16(payload[6:8])
	var senderMAC MAC
	copy(senderMAC[:], payload[8:14])
	var senderIP IPv4
	copy(senderIP[:], payload[14:18])

	s.arp[senderIP] = senderMAC

	if op == arpOpRequest {
		var targetIP IPv4
		copy(targetIP[:], payload[24:28])
		if targetIP == s.ip {
			return s.sendARPReply(senderMAC, senderIP)
		}
	}
	return nil
}

func (s *Stack) sendARPReply(targetMAC MAC, targetIP IPv4) error {
	frame := buildARP(s.mac, s.ip, targetMAC, targetIP, arpOpReply)
	return s.sender.SendFrame(frame)
}

func (s *Stack) handleIPv4(payload []byte) error {
	if len(payload) < 20 {
		return fmt.Errorf("netstack: IPv4 packet too short")
	}
	ihl := int(payload[0]&0x0f) * 4
	if len(payload) < ihl {
		return fmt.Errorf("netstack: IPv4 header longer than packet")
	}
	proto := payload[9]
	var srcIP IPv4
	copy(srcIP[:], payload[12:16])

	if proto != protoUDP {
		return nil
	}
	return s.handleUDP(srcIP, payload[ihl:])
}

func (s *Stack) handleUDP(srcIP IPv4, payload []byte) error {
	if len(payload) < 8 {
		return fmt.Errorf("netstack: UDP packet too short")
	}
	srcPort := binary.BigEndian.Uint16(payload[0:2])
	dstPort := binary.BigEndian.Uint16(payload[2:4])
	length := binary.BigEndian.Uint16(payload[4:6])
	if int(length) > len(payload) {
		return fmt.Errorf("netstack: UDP length exceeds packet")
	}
	data := payload[8:length]

	sock, ok := s.sockets[dstPort]
	if !ok {
		return nil
	}
	sock.deliver(Endpoint{Addr: srcIP, Port: srcPort}, append([]byte(nil), data...))
	return nil
}

func buildARP(srcMAC MAC, srcIP IPv4, dstMAC MAC, dstIP IPv4, op uint16) []byte {
	frame := make([]byte, 14+28)
	copy(frame[0:6], dstMAC[:])
	copy(frame[6:12], srcMAC[:])
	binary.BigEndian.PutUint16(frame[12:14], etherTypeARP)

	arp := frame[14:]
	binary.BigEndian.PutUint16(arp[0:2], 1)      // htype: Ethernet
	binary.BigEndian.PutUint16(arp[2:4], 0x0800) // ptype: IPv4
	arp[4] = 6                                   // hlen
	arp[5] = 4                                   // plen
	binary.BigEndian.PutUint16(arp[6:8], op)
	copy(arp[8:14], srcMAC[:])
	copy(arp[14:18], srcIP[:])
	copy(arp[18:24], dstMAC[:])
	copy(arp[24:28], dstIP[:])
	return frame
}

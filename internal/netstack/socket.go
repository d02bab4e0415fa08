package netstack

import (
	"encoding/binary"

	"gvisor.dev/gvisor/pkg/sync"
)

// Socket is one bound UDP port. It implements the syscalls.UDPSocket
// contract (Send/Recv) without importing the syscalls package, keeping
// the dependency direction the same way internal/stdin's Waker
// interface does: the consumer names the shape it needs, the producer
// doesn't import the consumer.
type Socket struct {
	stack     *Stack
	localPort uint16

	mu     sync.Mutex
	remote *Endpoint
	queue  [][]byte
}

// deliver records the sender as this socket's remote endpoint and
// enqueues a received datagram's payload, called from Stack.handleUDP.
func (s *Socket) deliver(from Endpoint, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = &from
	s.queue = append(s.queue, data)
}

// Send transmits data to whatever endpoint last sent this socket a
// datagram, returning ErrNoReceiveIPYet if none has arrived yet --
// mirroring the original's documented "no destination until first
// receive" UDP socket model.
func (s *Socket) Send(data []byte) error {
	s.mu.Lock()
	remote := s.remote
	s.mu.Unlock()

	if remote == nil {
		return ErrNoReceiveIPYet
	}

	frame := buildUDPFrame(s.stack.mac, s.stack.ip, s.localPort, *remote, data)
	return s.stack.sender.SendFrame(frame)
}

// Recv copies the oldest buffered datagram into buf and returns its
// length, or (0, false-like via 0) if nothing is queued -- the caller
// (syscalls.Handler) treats a zero-length successful read as "nothing
// available" the same way read_input's nonblocking variant does.
func (s *Socket) Recv(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return 0, nil
	}
	data := s.queue[0]
	s.queue = s.queue[1:]
	n := copy(buf, data)
	return n, nil
}

func buildUDPFrame(srcMAC MAC, srcIP IPv4, srcPort uint16, dst Endpoint, payload []byte) []byte {
	dstMAC := MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff} // ARP resolution is out of scope for reply frames; broadcast is acceptable on a point-to-point virtio link

	udpLen := 8 + len(payload)
	udp := make([]byte, udpLen)
	binary.BigEndian.PutUint16(udp[0:2], srcPort)
	binary.BigEndian.PutUint16(udp[2:4], dst.Port)
	binary.BigEndian.PutUint16(udp[4:6], uint16(udpLen))
	copy(udp[8:], payload)

	ipLen := 20 + udpLen
	ip := make([]byte, ipLen)
	ip[0] = 0x45 // version 4, IHL 5
	binary.BigEndian.PutUint16(ip[2:4], uint16(ipLen))
	ip[8] = 64 // TTL
	ip[9] = protoUDP
	copy(ip[12:16], srcIP[:])
	copy(ip[16:20], dst.Addr[:])
	copy(ip[20:], udp)

	frame := make([]byte, 14+ipLen)
	copy(frame[0:6], dstMAC[:])
	copy(frame[6:12], srcMAC[:])
	binary.BigEndian.PutUint16(frame[12:14], etherTypeIPv4)
	copy(frame[14:], ip)
	return frame
}

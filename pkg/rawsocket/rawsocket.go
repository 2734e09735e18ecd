/*
Copyright 2025 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package rawsocket implements the AF_PACKET/SOCK_RAW L2 socket of spec
// §4.7: it binds to one interface, installs a classic BPF filter compiled
// with golang.org/x/net/bpf, and captures/injects whole Ethernet frames for
// pkg/dhcpclient's DHCP client (which has no IP address yet and so cannot use a
// UDP socket). The total-drop/drain/install sequence below is ported from
// libpcap's pcap-linux.c set_kernel_filter() as reused by pyroute2's
// AsyncRawSocket.
package rawsocket

import (
	"context"
	"fmt"

	"github.com/google/netlinkgo/pkg/rtnl"

	"github.com/pkg/errors"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// ethPAll is ETH_P_ALL in host byte order (converted with htons where it is
// used), the protocol value bound to receive every ethertype on the interface.
const ethPAll = 0x0003

// htons converts a host-order uint16 to the network-order value the kernel
// expects in sockaddr_ll.Protocol and the SOCK_RAW protocol argument.
func htons(v uint16) uint16 { return v<<8 | v>>8 }

// Socket is one AF_PACKET raw socket bound to a single interface.
type Socket struct {
	fd      int
	ifindex int32
	ifname  string
	l2addr  []byte
}

// totalDropProgram matches libpcap's "total filter": a single instruction
// returning 0 (accept no bytes), attached before bind settles and removed
// or replaced once the caller's real filter is ready. It exists purely to
// close the race window between socket() and the real filter being
// installed, during which unrelated traffic would otherwise queue.
var totalDropProgram = []bpf.Instruction{bpf.RetConstant{Val: 0}}

// New opens a raw socket bound to ifname (resolved to an ifindex via
// client) and installs filter, a program assembled with
// golang.org/x/net/bpf's RawInstructions or one of its Instruction
// constructors. A nil filter leaves the socket accepting every frame.
func New(ctx context.Context, client *rtnl.Client, ifname string, filter []bpf.Instruction) (*Socket, error) {
	link, ok, err := client.GetLink(ctx, ifname)
	if err != nil {
		return nil, errors.Wrapf(err, "rawsocket: resolve %s", ifname)
	}
	if !ok {
		return nil, fmt.Errorf("rawsocket: interface %q not found", ifname)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(htons(ethPAll)))
	if err != nil {
		return nil, errors.Wrap(err, "rawsocket: socket")
	}
	s := &Socket{fd: fd, ifindex: link.Index, ifname: ifname, l2addr: []byte(link.Address)}

	if err := s.installProgram(totalDropProgram); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "rawsocket: install total-drop filter")
	}

	sa := &unix.SockaddrLinklayer{Protocol: htons(ethPAll), Ifindex: int(link.Index)}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "rawsocket: bind")
	}

	s.drain()

	if len(filter) > 0 {
		if err := s.installProgram(filter); err != nil {
			unix.Close(fd)
			return nil, errors.Wrap(err, "rawsocket: install filter")
		}
	} else if err := s.detachProgram(); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "rawsocket: detach total-drop filter")
	}

	return s, nil
}

// Ifindex returns the bound interface's index.
func (s *Socket) Ifindex() int32 { return s.ifindex }

// HardwareAddr returns the bound interface's MAC address.
func (s *Socket) HardwareAddr() []byte { return s.l2addr }

func (s *Socket) installProgram(prog []bpf.Instruction) error {
	raw, err := bpf.Assemble(prog)
	if err != nil {
		return errors.Wrap(err, "assemble")
	}
	return unix.SetsockoptSockFprog(s.fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, rawToFprog(raw))
}

func (s *Socket) detachProgram() error {
	raw, err := bpf.Assemble(totalDropProgram)
	if err != nil {
		return errors.Wrap(err, "assemble")
	}
	return unix.SetsockoptSockFprog(s.fd, unix.SOL_SOCKET, unix.SO_DETACH_FILTER, rawToFprog(raw))
}

func rawToFprog(raw []bpf.RawInstruction) *unix.SockFprog {
	filters := make([]unix.SockFilter, len(raw))
	for i, ins := range raw {
		filters[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return &unix.SockFprog{Len: uint16(len(filters)), Filter: &filters[0]}
}

// drain discards whatever queued while the total-drop filter was settling,
// tolerating ENETDOWN (raised once per down event, by design of the
// kernel's packet socket implementation) and stopping at EAGAIN.
func (s *Socket) drain() {
	buf := make([]byte, 1)
	for {
		_, _, err := unix.Recvfrom(s.fd, buf, unix.MSG_DONTWAIT)
		if err == nil {
			continue
		}
		if errors.Is(err, unix.ENETDOWN) {
			continue
		}
		return
	}
}

// Recv reads one frame into buf, returning the number of bytes read.
func (s *Socket) Recv(buf []byte) (int, error) {
	n, _, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		return 0, errors.Wrap(err, "rawsocket: recvfrom")
	}
	return n, nil
}

// Send transmits frame (a complete Ethernet frame, destination MAC
// included) out the bound interface.
func (s *Socket) Send(frame []byte) error {
	sa := &unix.SockaddrLinklayer{Ifindex: int(s.ifindex), Halen: 6}
	copy(sa.Addr[:6], frame[:6])
	return errors.Wrap(unix.Sendto(s.fd, frame, 0, sa), "rawsocket: sendto")
}

// Close releases the socket fd.
func (s *Socket) Close() error { return unix.Close(s.fd) }

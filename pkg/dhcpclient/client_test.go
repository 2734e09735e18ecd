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

package dhcpclient

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/netlinkgo/pkg/dhcp4"
	"github.com/google/netlinkgo/pkg/dhcp4/fsm"
	"github.com/google/netlinkgo/pkg/dhcpclient/lease"
)

// fakeTransport stands in for *pkg/rawsocket.Socket: frames the client
// sends land on sent, frames queued on recv are delivered to the next
// Recv call, and Close unblocks a pending Recv the way closing a real fd
// does.
type fakeTransport struct {
	mac       net.HardwareAddr
	sent      chan []byte
	recv      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		mac:    net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		sent:   make(chan []byte, 16),
		recv:   make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Send(frame []byte) error {
	select {
	case f.sent <- append([]byte(nil), frame...):
	default:
	}
	return nil
}

func (f *fakeTransport) Recv(buf []byte) (int, error) {
	select {
	case data := <-f.recv:
		return copy(buf, data), nil
	case <-f.closed:
		return 0, errors.New("fakeTransport: closed")
	}
}

func (f *fakeTransport) HardwareAddr() []byte { return f.mac }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) deliver(t *testing.T, frame []byte) {
	t.Helper()
	select {
	case f.recv <- frame:
	case <-time.After(time.Second):
		t.Fatal("timed out delivering frame to client")
	}
}

func (f *fakeTransport) takeSent(t *testing.T) *dhcp4.Frame {
	t.Helper()
	select {
	case raw := <-f.sent:
		fr, err := dhcp4.ParseFrame(raw)
		if err != nil {
			t.Fatalf("client sent an unparseable frame: %v", err)
		}
		return fr
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client to send a frame")
		return nil
	}
}

func putU32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func serverFrame(msgType dhcp4.MessageType, xid uint32, ip, server string, leaseTime uint32) []byte {
	m := &dhcp4.Message{Yiaddr: net.ParseIP(ip).To4(), Xid: xid}
	m.SetOption(dhcp4.OptMessageType, []byte{byte(msgType)})
	m.SetOption(dhcp4.OptServerID, net.ParseIP(server).To4())
	if leaseTime > 0 {
		m.SetOption(dhcp4.OptLeaseTime, putU32(leaseTime))
	}
	f := &dhcp4.Frame{
		SrcMAC:  net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		DstMAC:  dhcp4.BroadcastMAC(),
		SrcIP:   net.ParseIP(server),
		DstIP:   net.IPv4bcast,
		SrcPort: dhcp4.ServerPort,
		DstPort: dhcp4.ClientPort,
		Message: m,
	}
	return f.Marshal()
}

type discardSink struct{}

func (discardSink) Save(*lease.Lease) error               { return nil }
func (discardSink) Load(string) (*lease.Lease, error)      { return nil, nil }

func waitForState(t *testing.T, c *Client, want fsm.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, still %s", want, c.State())
}

func newTestClient(transport *fakeTransport) *Client {
	cfg := DefaultConfig("eth0")
	cfg.Sink = discardSink{}
	return New(transport, nil, cfg)
}

// TestScenarioDiscoverOfferRequestAck reproduces the DISCOVER/OFFER/
// REQUEST/ACK exchange of scenario S5: the client ends BOUND with the
// server's offered address and lease time.
func TestScenarioDiscoverOfferRequestAck(t *testing.T) {
	tr := newFakeTransport()
	c := newTestClient(tr)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	discover := tr.takeSent(t)
	if discover.Message.Type() != dhcp4.Discover {
		t.Fatalf("first sent message = %s, want DISCOVER", discover.Message.Type())
	}
	waitForState(t, c, fsm.Selecting)

	offerXid := discover.Message.Xid
	tr.deliver(t, serverFrame(dhcp4.Offer, offerXid, "192.168.94.191", "192.168.94.254", 43200))

	request := tr.takeSent(t)
	if request.Message.Type() != dhcp4.Request {
		t.Fatalf("second sent message = %s, want REQUEST", request.Message.Type())
	}
	waitForState(t, c, fsm.Requesting)

	tr.deliver(t, serverFrame(dhcp4.Ack, request.Message.Xid, "192.168.94.191", "192.168.94.254", 43200))
	waitForState(t, c, fsm.Bound)

	l := c.Lease()
	if l == nil {
		t.Fatal("client has no lease after ACK")
	}
	if got := l.IP().String(); got != "192.168.94.191" {
		t.Errorf("lease IP = %s, want 192.168.94.191", got)
	}
	if got := l.ServerID().String(); got != "192.168.94.254" {
		t.Errorf("lease server id = %s, want 192.168.94.254", got)
	}
	if l.LeaseTime() != 43200 {
		t.Errorf("lease time = %d, want 43200", l.LeaseTime())
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run() to return after cancel")
	}
}

// TestScenarioNakResetsToInit reproduces scenario S6: a NAK while
// REQUESTING drops the lease and sends the client back to INIT with a
// fresh DISCOVER carrying a new transaction id.
func TestScenarioNakResetsToInit(t *testing.T) {
	tr := newFakeTransport()
	c := newTestClient(tr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	discover := tr.takeSent(t)
	waitForState(t, c, fsm.Selecting)

	tr.deliver(t, serverFrame(dhcp4.Offer, discover.Message.Xid, "192.168.94.191", "192.168.94.254", 43200))
	request := tr.takeSent(t)
	waitForState(t, c, fsm.Requesting)

	tr.deliver(t, serverFrame(dhcp4.Nak, request.Message.Xid, "0.0.0.0", "192.168.94.254", 0))
	waitForState(t, c, fsm.Selecting)

	if l := c.Lease(); l != nil {
		t.Errorf("Lease() = %+v, want nil after NAK", l)
	}

	freshDiscover := tr.takeSent(t)
	if freshDiscover.Message.Type() != dhcp4.Discover {
		t.Fatalf("message after NAK = %s, want a fresh DISCOVER", freshDiscover.Message.Type())
	}
	if freshDiscover.Message.Xid == discover.Message.Xid {
		t.Error("DISCOVER after NAK reused the old transaction id")
	}
}

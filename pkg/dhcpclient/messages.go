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
	"net"

	"github.com/google/netlinkgo/pkg/dhcp4"
	"github.com/google/netlinkgo/pkg/dhcp4/fsm"
	"github.com/google/netlinkgo/pkg/dhcpclient/lease"
)

func ip4Bytes(ip net.IP) []byte {
	v := ip.To4()
	if v == nil {
		return nil
	}
	return []byte(v)
}

func newRequest(hwaddr net.HardwareAddr, params []byte) *dhcp4.Message {
	m := &dhcp4.Message{Op: dhcp4.OpBootRequest, Htype: dhcp4.HtypeEthernet, Hlen: dhcp4.HlenEthernet, Chaddr: hwaddr}
	if len(params) > 0 {
		m.SetOption(dhcp4.OptParameterList, params)
	}
	return m
}

// discoverMessage builds a DHCPDISCOVER, sent broadcast from the INIT state.
func discoverMessage(hwaddr net.HardwareAddr, params []byte) *dhcp4.Message {
	m := newRequest(hwaddr, params)
	m.SetOption(dhcp4.OptMessageType, []byte{byte(dhcp4.Discover)})
	return m
}

// requestForOffer builds the DHCPREQUEST sent from SELECTING in response to
// an OFFER, naming the offered address and server per RFC 2131 §4.3.2.
func requestForOffer(hwaddr net.HardwareAddr, params []byte, offer *dhcp4.Message) *dhcp4.Message {
	m := newRequest(hwaddr, params)
	m.SetOption(dhcp4.OptMessageType, []byte{byte(dhcp4.Request)})
	m.SetOption(dhcp4.OptRequestedIP, ip4Bytes(offer.Yiaddr))
	if sid := offer.GetOption(dhcp4.OptServerID); sid != nil {
		m.SetOption(dhcp4.OptServerID, sid)
	}
	return m
}

// requestForLease builds the DHCPREQUEST used to reacquire an existing
// lease from REBOOTING, RENEWING, or REBINDING: REBOOTING asks for the
// address via option 50 (the client has no IP yet), while RENEWING and
// REBINDING fill Ciaddr instead, per RFC 2131 table 4.
func requestForLease(hwaddr net.HardwareAddr, params []byte, l *lease.Lease, state fsm.State) *dhcp4.Message {
	m := newRequest(hwaddr, params)
	m.SetOption(dhcp4.OptMessageType, []byte{byte(dhcp4.Request)})
	switch state {
	case fsm.Rebooting:
		m.SetOption(dhcp4.OptRequestedIP, ip4Bytes(l.IP()))
	case fsm.Renewing, fsm.Rebinding:
		m.Ciaddr = l.IP()
	}
	return m
}

// releaseMessage builds the DHCPRELEASE sent on a clean shutdown with a
// valid lease.
func releaseMessage(hwaddr net.HardwareAddr, l *lease.Lease) *dhcp4.Message {
	m := &dhcp4.Message{Op: dhcp4.OpBootRequest, Htype: dhcp4.HtypeEthernet, Hlen: dhcp4.HlenEthernet, Chaddr: hwaddr, Ciaddr: l.IP()}
	m.SetOption(dhcp4.OptMessageType, []byte{byte(dhcp4.Release)})
	if sid := ip4Bytes(l.ServerID()); sid != nil {
		m.SetOption(dhcp4.OptServerID, sid)
	}
	return m
}

// frameFor wraps msg in the Ethernet/IPv4/UDP envelope it must travel in.
// RENEWING unicasts to the lease's server; every other state broadcasts,
// since the client either has no address yet or is escalating past a
// silent server.
func frameFor(hwaddr net.HardwareAddr, msg *dhcp4.Message, state fsm.State, current *lease.Lease) *dhcp4.Frame {
	f := &dhcp4.Frame{
		SrcMAC:  hwaddr,
		SrcPort: dhcp4.ClientPort,
		DstPort: dhcp4.ServerPort,
		Message: msg,
		SrcIP:   net.IPv4zero,
		DstIP:   net.IPv4bcast,
	}
	if state == fsm.Renewing && current != nil {
		f.SrcIP = current.IP()
		f.DstIP = current.ServerID()
		f.DstMAC = current.ServerMAC
	}
	return f
}

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
	"testing"
	"time"

	"github.com/google/netlinkgo/pkg/dhcp4"
	"github.com/google/netlinkgo/pkg/dhcp4/fsm"
	"github.com/google/netlinkgo/pkg/dhcpclient/lease"
)

var testMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

func TestDiscoverMessageSetsType(t *testing.T) {
	m := discoverMessage(testMAC, nil)
	if m.Type() != dhcp4.Discover {
		t.Errorf("Type() = %v, want DISCOVER", m.Type())
	}
}

func TestRequestForOfferEchoesOfferedAddressAndServer(t *testing.T) {
	offer := &dhcp4.Message{Yiaddr: net.ParseIP("192.168.94.191").To4()}
	offer.SetOption(dhcp4.OptServerID, net.ParseIP("192.168.94.254").To4())

	req := requestForOffer(testMAC, nil, offer)
	if req.Type() != dhcp4.Request {
		t.Errorf("Type() = %v, want REQUEST", req.Type())
	}
	if got := net.IP(req.GetOption(dhcp4.OptRequestedIP)).String(); got != "192.168.94.191" {
		t.Errorf("requested IP = %s, want 192.168.94.191", got)
	}
	if got := net.IP(req.GetOption(dhcp4.OptServerID)).String(); got != "192.168.94.254" {
		t.Errorf("server id = %s, want 192.168.94.254", got)
	}
}

func ackFor(t *testing.T, ip, server string) *dhcp4.Message {
	t.Helper()
	m := &dhcp4.Message{Yiaddr: net.ParseIP(ip).To4()}
	m.SetOption(dhcp4.OptServerID, net.ParseIP(server).To4())
	return m
}

func TestRequestForLeaseUsesOption50InRebooting(t *testing.T) {
	l := lease.New("eth0", testMAC, ackFor(t, "192.168.94.191", "192.168.94.254"), time.Now())
	req := requestForLease(testMAC, nil, l, fsm.Rebooting)
	if got := net.IP(req.GetOption(dhcp4.OptRequestedIP)).String(); got != "192.168.94.191" {
		t.Errorf("requested IP = %s, want 192.168.94.191", got)
	}
	if !req.Ciaddr.Equal(net.IPv4zero) && req.Ciaddr != nil {
		t.Errorf("Ciaddr = %v, want unset in REBOOTING", req.Ciaddr)
	}
}

func TestRequestForLeaseFillsCiaddrInRenewing(t *testing.T) {
	l := lease.New("eth0", testMAC, ackFor(t, "192.168.94.191", "192.168.94.254"), time.Now())
	req := requestForLease(testMAC, nil, l, fsm.Renewing)
	if req.Ciaddr.String() != "192.168.94.191" {
		t.Errorf("Ciaddr = %v, want 192.168.94.191", req.Ciaddr)
	}
	if req.GetOption(dhcp4.OptRequestedIP) != nil {
		t.Error("RENEWING request should not carry option 50")
	}
}

func TestFrameForUnicastsOnlyWhenRenewing(t *testing.T) {
	l := lease.New("eth0", net.HardwareAddr{9, 9, 9, 9, 9, 9}, ackFor(t, "192.168.94.191", "192.168.94.254"), time.Now())
	msg := requestForLease(testMAC, nil, l, fsm.Renewing)

	renewing := frameFor(testMAC, msg, fsm.Renewing, l)
	if renewing.DstIP.String() != "192.168.94.254" {
		t.Errorf("RENEWING DstIP = %v, want the server address", renewing.DstIP)
	}

	rebinding := frameFor(testMAC, msg, fsm.Rebinding, l)
	if !rebinding.DstIP.Equal(net.IPv4bcast) {
		t.Errorf("REBINDING DstIP = %v, want broadcast", rebinding.DstIP)
	}
}

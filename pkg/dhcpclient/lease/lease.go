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

// Package lease implements the persistent lease record and its derived
// timer properties from spec §4.10/§6: a Lease owns the raw ACK, the
// interface name, the server's link-layer address, and the acquisition
// timestamp, and computes renewal/rebinding/expiration countdowns from
// those plus the ACK's own timing options. Grounded on the retrieved
// pyroute2/dhcp/leases.py.
package lease

import (
	"encoding/json"
	"math/rand"
	"net"
	"time"

	"github.com/google/netlinkgo/pkg/dhcp4"
)

// Lease is the durable record of one bound DHCP address.
type Lease struct {
	Interface string
	ServerMAC net.HardwareAddr
	Obtained  time.Time
	Ack       *dhcp4.Message
}

// diskFormat is the on-disk JSON shape: the raw ACK dictionary, interface
// name, server MAC, and acquisition timestamp named in spec §6.
type diskFormat struct {
	Interface string    `json:"interface"`
	ServerMAC string    `json:"server_mac"`
	Obtained  time.Time `json:"obtained"`
	Ack       ackJSON   `json:"ack"`
}

// MarshalJSON writes the single-JSON-file-per-interface format of spec §6.
func (l *Lease) MarshalJSON() ([]byte, error) {
	return json.Marshal(diskFormat{
		Interface: l.Interface,
		ServerMAC: l.ServerMAC.String(),
		Obtained:  l.Obtained,
		Ack:       toAckJSON(l.Ack),
	})
}

// UnmarshalJSON reconstructs a Lease from the on-disk format. It does not
// validate option presence beyond what parsing requires -- callers that
// need a field the server omitted see it as the zero value.
func (l *Lease) UnmarshalJSON(b []byte) error {
	var d diskFormat
	if err := json.Unmarshal(b, &d); err != nil {
		return err
	}
	l.Interface = d.Interface
	if d.ServerMAC != "" {
		mac, err := net.ParseMAC(d.ServerMAC)
		if err != nil {
			return err
		}
		l.ServerMAC = mac
	}
	l.Obtained = d.Obtained
	l.Ack = fromAckJSON(d.Ack)
	return nil
}

// ackJSON is the on-disk shape of an ACK: enough fields to reconstruct the
// derived properties without round-tripping through dhcp4.Message, since
// that type carries byte slices keyed by numeric option codes.
type ackJSON struct {
	Yiaddr     string `json:"yiaddr"`
	SubnetMask string `json:"subnet_mask,omitempty"`
	Routers    []string `json:"routers,omitempty"`
	ServerID   string `json:"server_id,omitempty"`
	LeaseTime  uint32 `json:"lease_time"`
	RenewalTime   uint32 `json:"renewal_time,omitempty"`
	RebindingTime uint32 `json:"rebinding_time,omitempty"`
}

func ipString(v []byte) string {
	if len(v) != 4 {
		return ""
	}
	return net.IP(v).String()
}

func u32(v []byte) uint32 {
	if len(v) != 4 {
		return 0
	}
	return uint32(v[0])<<24 | uint32(v[1])<<16 | uint32(v[2])<<8 | uint32(v[3])
}

func toAckJSON(ack *dhcp4.Message) ackJSON {
	j := ackJSON{
		Yiaddr:     ack.Yiaddr.String(),
		SubnetMask: ipString(ack.GetOption(dhcp4.OptSubnetMask)),
		ServerID:   ipString(ack.GetOption(dhcp4.OptServerID)),
		LeaseTime:  u32(ack.GetOption(dhcp4.OptLeaseTime)),
		RenewalTime:   u32(ack.GetOption(dhcp4.OptRenewalTime)),
		RebindingTime: u32(ack.GetOption(dhcp4.OptRebindingTime)),
	}
	if routers := ack.GetOption(dhcp4.OptRouter); len(routers) >= 4 {
		for i := 0; i+4 <= len(routers); i += 4 {
			j.Routers = append(j.Routers, net.IP(routers[i:i+4]).String())
		}
	}
	return j
}

func putU32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func fromAckJSON(j ackJSON) *dhcp4.Message {
	m := &dhcp4.Message{Yiaddr: net.ParseIP(j.Yiaddr).To4()}
	m.SetOption(dhcp4.OptMessageType, []byte{byte(dhcp4.Ack)})
	if j.SubnetMask != "" {
		m.SetOption(dhcp4.OptSubnetMask, net.ParseIP(j.SubnetMask).To4())
	}
	if j.ServerID != "" {
		m.SetOption(dhcp4.OptServerID, net.ParseIP(j.ServerID).To4())
	}
	if j.LeaseTime != 0 {
		m.SetOption(dhcp4.OptLeaseTime, putU32(j.LeaseTime))
	}
	if j.RenewalTime != 0 {
		m.SetOption(dhcp4.OptRenewalTime, putU32(j.RenewalTime))
	}
	if j.RebindingTime != 0 {
		m.SetOption(dhcp4.OptRebindingTime, putU32(j.RebindingTime))
	}
	if len(j.Routers) > 0 {
		var routers []byte
		for _, r := range j.Routers {
			routers = append(routers, net.ParseIP(r).To4()...)
		}
		m.SetOption(dhcp4.OptRouter, routers)
	}
	return m
}

// New builds a Lease from a freshly-received ACK.
func New(iface string, serverMAC net.HardwareAddr, ack *dhcp4.Message, obtained time.Time) *Lease {
	return &Lease{Interface: iface, ServerMAC: serverMAC, Obtained: obtained, Ack: ack}
}

// IP returns the bound address, or nil if the lease has no ACK.
func (l *Lease) IP() net.IP {
	if l.Ack == nil {
		return nil
	}
	return l.Ack.Yiaddr
}

// SubnetMask returns the ACK's subnet mask option, or nil if absent.
func (l *Lease) SubnetMask() net.IPMask {
	v := l.Ack.GetOption(dhcp4.OptSubnetMask)
	if len(v) != 4 {
		return nil
	}
	return net.IPMask(v)
}

// Routers returns the ACK's router list option, decoded into one IP per
// 4-byte group.
func (l *Lease) Routers() []net.IP {
	v := l.Ack.GetOption(dhcp4.OptRouter)
	var out []net.IP
	for i := 0; i+4 <= len(v); i += 4 {
		out = append(out, net.IP(append([]byte(nil), v[i:i+4]...)))
	}
	return out
}

// ServerID returns the ACK's server identifier option.
func (l *Lease) ServerID() net.IP {
	v := l.Ack.GetOption(dhcp4.OptServerID)
	if len(v) != 4 {
		return nil
	}
	return net.IP(v)
}

// LeaseTime returns the ACK's lease-time option in seconds, or 0 if
// absent (callers should treat 0 as "missing", per spec §4.10).
func (l *Lease) LeaseTime() uint32 { return u32(l.Ack.GetOption(dhcp4.OptLeaseTime)) }

// infinite is returned by the *_In methods when the corresponding timer
// never fires -- spec §4.10's "a timer of -1 means infinite".
const infinite = -1 * time.Second

func fuzzyFraction(lo, hi float64) float64 { return lo + rand.Float64()*(hi-lo) }

// RenewalIn, RebindingIn, ExpirationIn are obtained + option_value - now.
// A missing renewal/rebinding option falls back to a random fraction of
// the lease time (0.4-0.6 for renewal, 0.75-0.90 for rebinding) rather
// than a fixed fraction, to avoid every client on a subnet renewing in
// lockstep after a shared power event.
func (l *Lease) timerIn(now time.Time, seconds uint32) time.Duration {
	if seconds == 0 {
		return infinite
	}
	deadline := l.Obtained.Add(time.Duration(seconds) * time.Second)
	return deadline.Sub(now)
}

// RenewalIn is the remaining time until the renewal (T1) timer fires.
func (l *Lease) RenewalIn(now time.Time) time.Duration {
	lt := l.LeaseTime()
	if lt == 0 {
		return infinite
	}
	rt := u32(l.Ack.GetOption(dhcp4.OptRenewalTime))
	if rt == 0 {
		rt = uint32(float64(lt) * fuzzyFraction(0.4, 0.6))
	}
	return l.timerIn(now, rt)
}

// RebindingIn is the remaining time until the rebinding (T2) timer fires.
func (l *Lease) RebindingIn(now time.Time) time.Duration {
	lt := l.LeaseTime()
	if lt == 0 {
		return infinite
	}
	rt := u32(l.Ack.GetOption(dhcp4.OptRebindingTime))
	if rt == 0 {
		rt = uint32(float64(lt) * fuzzyFraction(0.75, 0.90))
	}
	return l.timerIn(now, rt)
}

// ExpirationIn is the remaining time until the lease's own expiry.
func (l *Lease) ExpirationIn(now time.Time) time.Duration {
	lt := l.LeaseTime()
	if lt == 0 {
		return infinite
	}
	return l.timerIn(now, lt)
}

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

// Package mock implements the in-memory substitute for a live netlink
// socket named in spec §4.4: a Database of links/addresses/routes that
// honors the same EEXIST/ENOENT semantics as the kernel, so pkg/rtnl's
// "ensure present/absent" verbs behave identically against mock and real
// sockets. Grounded on pyroute2's NetNS mock-pressure test doubles, which
// keep parallel Python dict state rather than a real PF_NETLINK socket.
package mock

import (
	"sort"
	"sync"
)

// LinkEntry mirrors one RTM_NEWLINK object: its ifinfomsg fields plus the
// raw attribute TLV blob carried after it.
type LinkEntry struct {
	Index     int32
	Type      uint16
	Flags     uint32
	Change    uint32
	Name      string
	Attrs     []byte // encoded nlmsg attribute TLVs, IFLA_IFNAME excluded
}

// AddrEntry mirrors one RTM_NEWADDR object.
type AddrEntry struct {
	Index     int32
	Family    byte
	PrefixLen byte
	Scope     byte
	Flags     byte
	Address   []byte // IFA_ADDRESS
	Local     []byte // IFA_LOCAL, defaults to Address
	Attrs     []byte
}

// RouteEntry mirrors one RTM_NEWROUTE object.
type RouteEntry struct {
	Family   byte
	DstLen   byte
	SrcLen   byte
	Tos      byte
	Table    byte
	Protocol byte
	Scope    byte
	Type     byte
	Flags    uint32
	OutIndex int32
	Dst      []byte
	Gateway  []byte
	Attrs    []byte
}

// NeighEntry mirrors one RTM_NEWNEIGH object.
type NeighEntry struct {
	Index     int32
	Family    byte
	State     uint16
	Dst       []byte
	LLAddr    []byte
}

// Database is the process-wide-per-namespace fixture a MockConn reads and
// mutates. Concurrent-safe: tests frequently drive several MockConns (one
// per simulated namespace) against independently constructed Databases, but
// a single Database may also be shared to model one namespace observed by
// two sockets (an RTNL event listener and a command socket).
type Database struct {
	mu sync.Mutex

	nextIndex int32
	Links     map[int32]*LinkEntry
	Addrs     []*AddrEntry
	Routes    []*RouteEntry
	Neighs    []*NeighEntry
}

// NewDatabase returns an empty Database seeded with a loopback link at
// index 1, matching every real netns's starting state.
func NewDatabase() *Database {
	d := &Database{
		nextIndex: 2,
		Links:     make(map[int32]*LinkEntry),
	}
	d.Links[1] = &LinkEntry{Index: 1, Name: "lo", Type: 772, Flags: 0x1 | 0x8} // IFF_UP|IFF_LOOPBACK
	return d
}

func (d *Database) lock()   { d.mu.Lock() }
func (d *Database) unlock() { d.mu.Unlock() }

// LinkByName returns the link named name, or nil.
func (d *Database) LinkByName(name string) *LinkEntry {
	for _, l := range d.Links {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// AllocIndex returns the next unused link ifindex.
func (d *Database) AllocIndex() int32 {
	idx := d.nextIndex
	d.nextIndex++
	return idx
}

// SortedLinkIndices returns link indices in ascending order, giving dump
// output a deterministic order for tests.
func (d *Database) SortedLinkIndices() []int32 {
	idx := make([]int32, 0, len(d.Links))
	for i := range d.Links {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(i, j int) bool { return idx[i] < idx[j] })
	return idx
}

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

package rtnl

import (
	"context"
	"net"
	"testing"

	"github.com/google/netlinkgo/pkg/netlinksock/mock"
)

// S1: dumping a preset with lo + eth0 yields both, in index order.
func TestDumpLinksPreset(t *testing.T) {
	db := mock.NewDatabase()
	db.Links[2] = &mock.LinkEntry{Index: 2, Name: "eth0", Type: 1}
	c := New(mock.Dial(db, 100))
	ctx := context.Background()

	links, err := c.DumpLinks(ctx)
	if err != nil {
		t.Fatalf("DumpLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2", len(links))
	}
	if links[0].Name != "lo" || links[0].Index != 1 {
		t.Errorf("links[0] = %+v, want lo/1", links[0])
	}
	if links[1].Name != "eth0" || links[1].Index != 2 {
		t.Errorf("links[1] = %+v, want eth0/2", links[1])
	}
}

// S2: adding a link twice with Excl set returns EEXIST the second time.
func TestAddLinkDuplicateFails(t *testing.T) {
	db := mock.NewDatabase()
	c := New(mock.Dial(db, 100))
	ctx := context.Background()

	if _, err := c.AddLink(ctx, LinkSpec{Name: "dummy0", Kind: "dummy"}); err != nil {
		t.Fatalf("first AddLink: %v", err)
	}
	if _, err := c.AddLink(ctx, LinkSpec{Name: "dummy0", Kind: "dummy"}); !isEEXIST(err) {
		t.Errorf("second AddLink err = %v, want EEXIST", err)
	}
}

// S3: deleting a nonexistent link raises ENOENT (via ENODEV on the wire).
func TestDelLinkMissingFails(t *testing.T) {
	db := mock.NewDatabase()
	c := New(mock.Dial(db, 100))
	ctx := context.Background()

	err := c.DelLink(ctx, "nope")
	if err == nil || !isENOENT(err) {
		t.Errorf("DelLink(nope) err = %v, want ENOENT-class", err)
	}
}

// S4: a preset address dumps back with its prefix length intact.
func TestDumpAddrsPreset(t *testing.T) {
	db := mock.NewDatabase()
	db.Links[2] = &mock.LinkEntry{Index: 2, Name: "eth0", Type: 1}
	ip := net.ParseIP("192.168.122.28").To4()
	db.Addrs = append(db.Addrs, &mock.AddrEntry{Index: 2, Family: 2, PrefixLen: 24, Address: ip, Local: ip})
	c := New(mock.Dial(db, 100))
	ctx := context.Background()

	addrs, err := c.DumpAddrs(ctx, 0)
	if err != nil {
		t.Fatalf("DumpAddrs: %v", err)
	}
	if len(addrs) != 1 {
		t.Fatalf("got %d addrs, want 1", len(addrs))
	}
	if addrs[0].PrefixLen != 24 || !addrs[0].Address.Equal(net.ParseIP("192.168.122.28")) {
		t.Errorf("addrs[0] = %+v, want 192.168.122.28/24", addrs[0])
	}
}

func TestEnsureLinkIdempotent(t *testing.T) {
	db := mock.NewDatabase()
	c := New(mock.Dial(db, 100))
	ctx := context.Background()

	if err := c.EnsureLink(ctx, true, LinkSpec{Name: "br0", Kind: "bridge"}); err != nil {
		t.Fatalf("first Ensure: %v", err)
	}
	if err := c.EnsureLink(ctx, true, LinkSpec{Name: "br0", Kind: "bridge"}); err != nil {
		t.Fatalf("second Ensure (no-op expected): %v", err)
	}
	if err := c.EnsureLink(ctx, false, LinkSpec{Name: "br0"}); err != nil {
		t.Fatalf("Ensure absent: %v", err)
	}
	if _, ok, _ := c.GetLink(ctx, "br0"); ok {
		t.Error("br0 still present after Ensure(false)")
	}
}

func TestCELSelectorMatchesUpLinks(t *testing.T) {
	db := mock.NewDatabase()
	db.Links[2] = &mock.LinkEntry{Index: 2, Name: "eth0", Flags: 0x1}
	db.Links[3] = &mock.LinkEntry{Index: 3, Name: "eth1", Flags: 0}
	c := New(mock.Dial(db, 100))
	ctx := context.Background()

	sel, err := NewCELSelector(`up && name.startsWith("eth")`)
	if err != nil {
		t.Fatalf("NewCELSelector: %v", err)
	}
	links, err := c.DumpLinksSelect(ctx, sel)
	if err != nil {
		t.Fatalf("DumpLinksSelect: %v", err)
	}
	if len(links) != 1 || links[0].Name != "eth0" {
		t.Errorf("got %+v, want only eth0", links)
	}
}

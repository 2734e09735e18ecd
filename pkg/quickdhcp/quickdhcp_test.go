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

package quickdhcp

import (
	"context"
	"testing"

	"github.com/google/netlinkgo/pkg/netlinksock/mock"
	"github.com/google/netlinkgo/pkg/rtnl"
)

func newTestClient(t *testing.T) *rtnl.Client {
	t.Helper()
	db := mock.NewDatabase()
	idx := db.AllocIndex()
	db.Links[idx] = &mock.LinkEntry{Index: idx, Name: "eth0", Flags: 0x1}
	conn := mock.Dial(db, 100)
	return rtnl.New(conn)
}

func TestApplyInstallsAddressAndRoutes(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	r := &Result{
		Address: "192.168.94.191/24",
		Routes: []Route{
			{Destination: "10.0.0.0/8", Gateway: "192.168.94.254"},
		},
	}
	if err := r.Apply(ctx, client, "eth0"); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	link, ok, err := client.GetLink(ctx, "eth0")
	if err != nil || !ok {
		t.Fatalf("GetLink: ok=%v err=%v", ok, err)
	}
	addrs, err := client.DumpAddrs(ctx, link.Index)
	if err != nil {
		t.Fatalf("DumpAddrs: %v", err)
	}
	if len(addrs) != 1 || addrs[0].Address.String() != "192.168.94.191" {
		t.Fatalf("DumpAddrs = %+v, want one address 192.168.94.191", addrs)
	}

	routes, err := client.DumpRoutes(ctx)
	if err != nil {
		t.Fatalf("DumpRoutes: %v", err)
	}
	found := false
	for _, rt := range routes {
		if rt.Gateway.String() == "192.168.94.254" {
			found = true
		}
	}
	if !found {
		t.Errorf("DumpRoutes = %+v, want a route via 192.168.94.254", routes)
	}
}

func TestApplyRejectsUnknownInterface(t *testing.T) {
	client := newTestClient(t)
	r := &Result{Address: "192.168.94.191/24"}
	if err := r.Apply(context.Background(), client, "nonexistent0"); err == nil {
		t.Error("Apply on a missing interface should fail")
	}
}

func TestApplyRejectsMalformedAddress(t *testing.T) {
	client := newTestClient(t)
	r := &Result{Address: "not-a-cidr"}
	if err := r.Apply(context.Background(), client, "eth0"); err == nil {
		t.Error("Apply with a malformed address should fail")
	}
}

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

package ndbcache

import (
	"context"
	"testing"
	"time"

	"github.com/google/netlinkgo/pkg/config"
	"github.com/google/netlinkgo/pkg/netlinksock/mock"
	"github.com/google/netlinkgo/pkg/rtnl"
)

func newTestCache(t *testing.T) (*Cache, *mock.Database) {
	t.Helper()
	db := mock.NewDatabase()
	conn := mock.Dial(db, 100)
	client := rtnl.New(conn)
	return New(client), db
}

func TestSyncSeedsFromDump(t *testing.T) {
	c, _ := newTestCache(t)
	if err := c.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	links := c.List()
	if len(links) != 1 || links[0].Name != "lo" {
		t.Fatalf("List() = %+v, want a single lo entry", links)
	}
}

func TestApplyLinkAddAndDelete(t *testing.T) {
	c, _ := newTestCache(t)
	l := rtnl.Link{Index: 2, Name: "eth0"}
	c.ApplyLink(l, true)

	got, ok, err := c.Get(context.Background(), 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || got.Name != "eth0" {
		t.Fatalf("Get(2) = %+v, %v, want eth0 present", got, ok)
	}

	c.ApplyLink(l, false)
	if _, ok, _ := c.Get(context.Background(), 2); ok {
		t.Fatalf("Get(2) still present after delete")
	}
}

func TestGetRefreshesWhenStale(t *testing.T) {
	c, db := newTestCache(t)
	if err := c.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	db.AllocIndex()
	db.Links[2] = &mock.LinkEntry{Index: 2, Name: "eth1"}

	orig := config.CacheExpire
	config.CacheExpire = time.Millisecond
	defer func() { config.CacheExpire = orig }()
	time.Sleep(2 * time.Millisecond)

	got, ok, err := c.GetByName(context.Background(), "eth1")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if !ok || got.Index != 2 {
		t.Fatalf("GetByName(eth1) = %+v, %v, want the link added after Sync", got, ok)
	}
}

func TestObserveFoldsLinkBroadcasts(t *testing.T) {
	db := mock.NewDatabase()
	conn := mock.Dial(db, 100)
	c := New(rtnl.New(conn))
	obs := c.Observe()
	if obs == nil {
		t.Fatal("Observe() returned nil")
	}
	conn.SetBroadcast(obs)
	if _, err := rtnl.New(conn).AddLink(context.Background(), rtnl.LinkSpec{Name: "dummy0", Kind: "dummy"}); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	links := c.List()
	if len(links) != 1 || links[0].Name != "dummy0" {
		t.Fatalf("List() = %+v, want the broadcast dummy0 entry", links)
	}
}

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

// Package ndbcache implements the non-SQL stand-in for pyroute2's NDB: an
// in-memory, continuously-updated view of RTNL objects built by replaying
// RTM_NEW*/RTM_DEL* broadcasts, with an initial bulk Sync() dump to seed
// it. pyroute2's NDB persists this same index in a SQLite/PostgreSQL
// table; here it is a set of maps guarded by a mutex, refreshed by
// subscribing a netlinksock.Broadcast callback (spec §6 "cache layer").
package ndbcache

import (
	"context"
	"sync"
	"time"

	"github.com/google/netlinkgo/pkg/config"
	"github.com/google/netlinkgo/pkg/netlinksock"
	"github.com/google/netlinkgo/pkg/nlmsg"
	"github.com/google/netlinkgo/pkg/rtnl"
)

const (
	rtmNewlink nlmsg.HeaderType = 16
	rtmDellink nlmsg.HeaderType = 17
)

// Cache mirrors the link table of one RTNL connection. Readers never block
// on a netlink round trip while the cache is fresh: Get/GetByName serve
// from memory and re-sync with a fresh dump once config.CacheExpire has
// elapsed since the last update (spec §5 "CacheExpire"); List always serves
// memory and never refreshes.
type Cache struct {
	mu          sync.RWMutex
	links       map[int32]rtnl.Link
	lastUpdated time.Time

	client *rtnl.Client
}

// New returns an empty Cache reading from client. Call Sync once before
// relying on Get/List, then feed it a netlinksock.Broadcast from the same
// underlying connection via Observe to keep it current.
func New(client *rtnl.Client) *Cache {
	return &Cache{links: make(map[int32]rtnl.Link), client: client}
}

// Sync performs a full RTM_GETLINK dump and replaces the cache contents.
func (c *Cache) Sync(ctx context.Context) error {
	links, err := c.client.DumpLinks(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links = make(map[int32]rtnl.Link, len(links))
	for _, l := range links {
		c.links[l.Index] = l
	}
	c.lastUpdated = time.Now()
	return nil
}

// ApplyLink incorporates a single decoded link update -- present=false
// means the link was deleted (RTM_DELLINK).
func (c *Cache) ApplyLink(l rtnl.Link, present bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if present {
		c.links[l.Index] = l
	} else {
		delete(c.links, l.Index)
	}
	c.lastUpdated = time.Now()
}

// Observe returns a netlinksock.Broadcast callback suitable for
// netlinksock.WithBroadcast: it decodes RTM_NEWLINK/RTM_DELLINK
// notifications and folds them into the cache via ApplyLink, so a caller
// only has to wire it in at connection-construction time.
func (c *Cache) Observe() netlinksock.Broadcast {
	return func(msg nlmsg.Message) {
		switch msg.Header.Type {
		case rtmNewlink:
			c.ApplyLink(rtnl.DecodeLinkMessage(msg), true)
		case rtmDellink:
			c.ApplyLink(rtnl.DecodeLinkMessage(msg), false)
		}
	}
}

func (c *Cache) stale() bool {
	return time.Since(c.lastUpdated) > config.CacheExpire
}

// Get returns the cached link by index. If the cache has gone stale (no
// broadcast observed within config.CacheExpire) it is silently refreshed
// from the live connection first.
func (c *Cache) Get(ctx context.Context, index int32) (rtnl.Link, bool, error) {
	c.mu.RLock()
	stale := c.stale()
	c.mu.RUnlock()
	if stale {
		if err := c.Sync(ctx); err != nil {
			return rtnl.Link{}, false, err
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.links[index]
	return l, ok, nil
}

// GetByName is Get, keyed by interface name instead of index.
func (c *Cache) GetByName(ctx context.Context, name string) (rtnl.Link, bool, error) {
	c.mu.RLock()
	stale := c.stale()
	c.mu.RUnlock()
	if stale {
		if err := c.Sync(ctx); err != nil {
			return rtnl.Link{}, false, err
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.links {
		if l.Name == name {
			return l, true, nil
		}
	}
	return rtnl.Link{}, false, nil
}

// List returns every cached link, unordered.
func (c *Cache) List() []rtnl.Link {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]rtnl.Link, 0, len(c.links))
	for _, l := range c.links {
		out = append(out, l)
	}
	return out
}

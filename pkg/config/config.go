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

// Package config holds the process-wide toggles named in spec §5: switches
// that change behavior across every Conn in the process rather than being
// per-call arguments, mirroring pyroute2's module-level config flags.
package config

import "time"

// MockNetlink, when true, routes every new Conn through the in-memory mock
// engine in pkg/netlinksock/mock instead of opening a real AF_NETLINK
// socket. Intended for tests and for environments without CAP_NET_ADMIN.
var MockNetlink = false

// MockNetns, when true, makes namespace-entry helpers in pkg/procsup a
// no-op instead of calling setns(2).
var MockNetns = false

// CacheExpire bounds how long pkg/ndbcache entries are trusted without a
// refreshing broadcast before a consumer should force a dump.
var CacheExpire = 60 * time.Second

// ChildProcessMode selects how pkg/procsup spawns its netns-entry helper:
// by re-executing the current binary, selected as the child through an
// environment variable (the default), versus a caller-supplied command path.
type ChildProcessMode int

const (
	// ReexecSelf re-execs /proc/self/exe with an internal environment variable set.
	ReexecSelf ChildProcessMode = iota
	// ExternalCommand execs a separately configured binary.
	ExternalCommand
)

// ChildMode is the process-wide default for new procsup.Supervisor values.
var ChildMode = ReexecSelf

// NetnsPath is prepended to bare namespace names passed to pkg/procsup,
// matching iproute2's /var/run/netns convention.
var NetnsPath = "/var/run/netns"

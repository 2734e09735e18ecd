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

package lease

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

// Sink persists a Lease across client restarts. Save errors are logged by
// the caller and swallowed per spec §7: the in-memory lease stays
// authoritative even if persistence fails.
type Sink interface {
	Save(l *Lease) error
	// Load returns (nil, nil) if no lease is on record -- including a
	// file that fails to parse, per spec §6's "load gracefully, treat as
	// no lease" rule. It returns a non-nil error only for conditions the
	// caller should surface (e.g. a permissions problem worth logging
	// distinctly from "file absent").
	Load(iface string) (*Lease, error)
}

// JSONFileSink writes one JSON file per interface under Dir (default: the
// working directory), grounded on pyroute2/dhcp/leases.py's
// JSONFileLease.
type JSONFileSink struct {
	Dir string
}

func (s JSONFileSink) path(iface string) string {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, fmt.Sprintf("%s.lease.json", iface))
}

func (s JSONFileSink) Save(l *Lease) error {
	b, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(l.Interface), b, 0o644)
}

func (s JSONFileSink) Load(iface string) (*Lease, error) {
	b, err := os.ReadFile(s.path(iface))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	l := &Lease{}
	if err := json.Unmarshal(b, l); err != nil {
		klog.Warningf("lease: %s is not a valid lease record, ignoring: %v", s.path(iface), err)
		return nil, nil
	}
	return l, nil
}

// StdoutSink writes the lease to stdout as one JSON line per Save and
// never reports a persisted lease on Load, grounded on
// pyroute2/dhcp/leases.py's JSONStdoutLease -- useful for a run that wants
// the ACK visible but has no interface state to carry across runs.
type StdoutSink struct{}

func (StdoutSink) Save(l *Lease) error {
	b, err := json.Marshal(l)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func (StdoutSink) Load(string) (*Lease, error) { return nil, nil }

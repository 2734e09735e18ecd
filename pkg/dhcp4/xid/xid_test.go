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

package xid

import (
	"testing"

	"github.com/google/netlinkgo/pkg/dhcp4/fsm"
)

func TestForStateEncodesStateInLowNibble(t *testing.T) {
	prefix := uint32(0x22334450)
	x := ForState(prefix, fsm.Selecting)
	if x.State() != fsm.Selecting {
		t.Errorf("State() = %v, want Selecting", x.State())
	}
	if x.Prefix() != prefix {
		t.Errorf("Prefix() = %#x, want %#x", x.Prefix(), prefix)
	}
}

func TestMatchesIgnoresStateNibble(t *testing.T) {
	prefix := uint32(0x22334450)
	discover := ForState(prefix, fsm.Selecting)
	request := ForState(prefix, fsm.Requesting)

	if !discover.Matches(prefix) || !request.Matches(prefix) {
		t.Fatal("Matches(prefix) false for an xid stamped with the same prefix")
	}
	if discover.Matches(prefix ^ 0x10) {
		t.Fatal("Matches matched a different prefix")
	}
}

func TestNewPrefixMasksStateNibble(t *testing.T) {
	p := NewPrefix()
	if p&stateMask != 0 {
		t.Errorf("NewPrefix() = %#x, low nibble not clear", p)
	}
}

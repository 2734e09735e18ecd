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

// Package fsm implements the DHCPv4 client state machine of spec §4.9: the
// legal transition table and a state-guard helper that lets each message
// handler declare which states it accepts, silently dropping late
// duplicates instead of erroring. Grounded 1:1 on the retrieved
// pyroute2/dhcp/fsm.py (State enum, TRANSITIONS map, state_guard
// decorator).
package fsm

import (
	"sync"

	"github.com/google/netlinkgo/pkg/nlerrors"
)

// State is one DHCP client lifecycle state.
type State int

const (
	Off State = iota
	Init
	InitReboot
	Rebooting
	Selecting
	Requesting
	Bound
	Renewing
	Rebinding
)

func (s State) String() string {
	switch s {
	case Off:
		return "OFF"
	case Init:
		return "INIT"
	case InitReboot:
		return "INIT_REBOOT"
	case Rebooting:
		return "REBOOTING"
	case Selecting:
		return "SELECTING"
	case Requesting:
		return "REQUESTING"
	case Bound:
		return "BOUND"
	case Renewing:
		return "RENEWING"
	case Rebinding:
		return "REBINDING"
	default:
		return "UNKNOWN"
	}
}

// transitions is the legal-move table from spec §4.9, keyed by the
// starting state.
var transitions = map[State][]State{
	Off:        {Init, InitReboot},
	InitReboot: {Rebooting},
	Rebooting:  {Init, Bound},
	Init:       {Selecting},
	Selecting:  {Requesting, Init},
	Requesting: {Bound, Init},
	Bound:      {Init, Renewing, Rebinding},
	Renewing:   {Bound, Init, Rebinding},
	Rebinding:  {Bound, Init},
}

func legal(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine holds one client's current state under a mutex, since the
// sender, receiver, and timer-supervisor tasks of pkg/dhcpclient all read
// and move it.
type Machine struct {
	mu    sync.Mutex
	state State
}

// New returns a Machine starting in Off.
func New() *Machine { return &Machine{state: Off} }

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetState moves to to, returning a *nlerrors.TransitionError if the move
// is not in the legal table -- a programming bug, meant to fail loudly per
// spec §7.
func (m *Machine) SetState(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !legal(m.state, to) {
		return &nlerrors.TransitionError{From: m.state.String(), To: to.String()}
	}
	m.state = to
	return nil
}

// Guard reports whether the current state is one of allowed, the
// translation of pyroute2's state_guard decorator: a handler calls this
// first and drops the message (logging it) if the guard fails, tolerating
// late duplicates without raising.
func (m *Machine) Guard(allowed ...State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range allowed {
		if m.state == s {
			return true
		}
	}
	return false
}

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

package fsm

import (
	"testing"

	"github.com/google/netlinkgo/pkg/nlerrors"
)

func TestLegalTransitionSequence(t *testing.T) {
	m := New()
	seq := []State{Init, Selecting, Requesting, Bound, Renewing, Bound, Rebinding, Bound, Init}
	for _, s := range seq {
		if err := m.SetState(s); err != nil {
			t.Fatalf("SetState(%v) from %v: %v", s, m.State(), err)
		}
	}
}

func TestIllegalTransitionIsRejected(t *testing.T) {
	m := New()
	if err := m.SetState(Init); err != nil {
		t.Fatalf("SetState(Init): %v", err)
	}
	err := m.SetState(Bound)
	if err == nil {
		t.Fatal("SetState(Init -> Bound) succeeded, want a TransitionError")
	}
	if _, ok := err.(*nlerrors.TransitionError); !ok {
		t.Errorf("err = %T, want *nlerrors.TransitionError", err)
	}
	if m.State() != Init {
		t.Errorf("State() = %v after rejected move, want unchanged Init", m.State())
	}
}

func TestGuardAcceptsOnlyDeclaredStates(t *testing.T) {
	m := New()
	m.SetState(Init)
	m.SetState(Selecting)
	if !m.Guard(Selecting) {
		t.Error("Guard(Selecting) = false while in Selecting")
	}
	if m.Guard(Requesting, Bound) {
		t.Error("Guard(Requesting, Bound) = true while in Selecting")
	}
}

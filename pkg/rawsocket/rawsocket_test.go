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

package rawsocket

import (
	"testing"

	"golang.org/x/net/bpf"
)

func TestHtons(t *testing.T) {
	if got := htons(0x0003); got != 0x0300 {
		t.Errorf("htons(0x0003) = %#04x, want 0x0300", got)
	}
}

func TestRawToFprogPreservesInstructions(t *testing.T) {
	raw, err := bpf.Assemble(totalDropProgram)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	fprog := rawToFprog(raw)
	if int(fprog.Len) != len(raw) {
		t.Fatalf("fprog.Len = %d, want %d", fprog.Len, len(raw))
	}
	if fprog.Filter.Code != raw[0].Op || fprog.Filter.K != raw[0].K {
		t.Errorf("fprog.Filter = %+v, want to mirror raw[0] = %+v", *fprog.Filter, raw[0])
	}
}

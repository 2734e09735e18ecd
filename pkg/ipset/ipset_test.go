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

package ipset

import "testing"

func TestMsgTypeEncodesSubsystemAndCommand(t *testing.T) {
	got := msgType(cmdCreate)
	want := nfnlSubsysIPSet<<8 | int(cmdCreate)
	if int(got) != want {
		t.Errorf("msgType(cmdCreate) = %#x, want %#x", got, want)
	}
}

func TestNfgenmsgFamilyByte(t *testing.T) {
	b := nfgenmsg(FamilyIPv6)
	if len(b) != 4 {
		t.Fatalf("nfgenmsg len = %d, want 4", len(b))
	}
	if b[0] != byte(FamilyIPv6) {
		t.Errorf("nfgenmsg()[0] = %d, want %d", b[0], FamilyIPv6)
	}
	if b[1] != protocolVersion {
		t.Errorf("nfgenmsg()[1] = %d, want %d", b[1], protocolVersion)
	}
}

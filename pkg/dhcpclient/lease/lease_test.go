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
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/netlinkgo/pkg/dhcp4"
)

func ackFixture() *dhcp4.Message {
	m := &dhcp4.Message{Yiaddr: net.ParseIP("192.168.94.191").To4()}
	m.SetOption(dhcp4.OptMessageType, []byte{byte(dhcp4.Ack)})
	m.SetOption(dhcp4.OptServerID, net.ParseIP("192.168.94.254").To4())
	m.SetOption(dhcp4.OptLeaseTime, putU32(43200))
	return m
}

func TestDerivedPropertiesFromACK(t *testing.T) {
	l := New("eth0", net.HardwareAddr{1, 2, 3, 4, 5, 6}, ackFixture(), time.Now())
	if l.IP().String() != "192.168.94.191" {
		t.Errorf("IP() = %v, want 192.168.94.191", l.IP())
	}
	if l.ServerID().String() != "192.168.94.254" {
		t.Errorf("ServerID() = %v, want 192.168.94.254", l.ServerID())
	}
	if l.LeaseTime() != 43200 {
		t.Errorf("LeaseTime() = %d, want 43200", l.LeaseTime())
	}
}

func TestTimerOrdering(t *testing.T) {
	now := time.Now()
	l := New("eth0", nil, ackFixture(), now)
	renewal := l.RenewalIn(now)
	rebinding := l.RebindingIn(now)
	expiration := l.ExpirationIn(now)
	if !(renewal < rebinding && rebinding < expiration) {
		t.Errorf("timers not strictly ordered: renewal=%v rebinding=%v expiration=%v", renewal, rebinding, expiration)
	}
	if d := expiration - 43200*time.Second; d > time.Second || d < -time.Second {
		t.Errorf("ExpirationIn = %v, want ~43200s", expiration)
	}
}

func TestMissingLeaseTimeIsInfinite(t *testing.T) {
	m := &dhcp4.Message{Yiaddr: net.ParseIP("10.0.0.1").To4()}
	l := New("eth0", nil, m, time.Now())
	if l.ExpirationIn(time.Now()) != infinite {
		t.Errorf("ExpirationIn() with no lease_time = %v, want infinite", l.ExpirationIn(time.Now()))
	}
}

func TestJSONFileSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sink := JSONFileSink{Dir: dir}
	l := New("eth0", net.HardwareAddr{1, 2, 3, 4, 5, 6}, ackFixture(), time.Now())

	if err := sink.Save(l); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := sink.Load("eth0")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.IP().String() != "192.168.94.191" {
		t.Fatalf("Load() = %+v, want a lease for 192.168.94.191", got)
	}
}

func TestJSONFileSinkLoadMissingIsNilNil(t *testing.T) {
	sink := JSONFileSink{Dir: t.TempDir()}
	got, err := sink.Load("eth9")
	if got != nil || err != nil {
		t.Fatalf("Load(missing) = %v, %v, want nil, nil", got, err)
	}
}

func TestJSONFileSinkLoadCorruptIsTreatedAsNoLease(t *testing.T) {
	dir := t.TempDir()
	sink := JSONFileSink{Dir: dir}
	if err := os.WriteFile(filepath.Join(dir, "eth0.lease.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := sink.Load("eth0")
	if got != nil || err != nil {
		t.Fatalf("Load(corrupt) = %v, %v, want nil, nil", got, err)
	}
}

func TestStdoutSinkNeverReportsALoadedLease(t *testing.T) {
	got, err := (StdoutSink{}).Load("eth0")
	if got != nil || err != nil {
		t.Fatalf("StdoutSink.Load() = %v, %v, want nil, nil", got, err)
	}
}

func TestLeaseMarshalJSONIncludesRawAck(t *testing.T) {
	l := New("eth0", net.HardwareAddr{1, 2, 3, 4, 5, 6}, ackFixture(), time.Now())
	b, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := raw["ack"]; !ok {
		t.Error("marshaled lease missing \"ack\" field")
	}
}

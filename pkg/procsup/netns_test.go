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

package procsup

import (
	"os"
	"testing"
	"time"

	"github.com/google/netlinkgo/pkg/config"
	"golang.org/x/sys/unix"
)

func TestResolveNsPathJoinsBareNames(t *testing.T) {
	old := config.NetnsPath
	config.NetnsPath = "/var/run/netns"
	defer func() { config.NetnsPath = old }()

	if got, want := resolveNsPath("blue"), "/var/run/netns/blue"; got != want {
		t.Errorf("resolveNsPath(%q) = %q, want %q", "blue", got, want)
	}
	if got, want := resolveNsPath("/custom/ns/blue"), "/custom/ns/blue"; got != want {
		t.Errorf("resolveNsPath(%q) = %q, want %q", "/custom/ns/blue", got, want)
	}
}

func TestSocketInNamespaceHonorsMockNetns(t *testing.T) {
	old := config.MockNetns
	config.MockNetns = true
	defer func() { config.MockNetns = old }()

	fd, err := SocketInNamespace("blue", unix.AF_INET, unix.SOCK_DGRAM, 0, time.Second)
	if err != nil {
		t.Fatalf("SocketInNamespace: %v", err)
	}
	f := os.NewFile(uintptr(fd), "mock-socket")
	defer f.Close()
	if _, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE); err != nil {
		t.Errorf("fd %d does not look like a live socket: %v", fd, err)
	}
}

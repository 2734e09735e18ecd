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
	"fmt"
	"os"
	"testing"
	"time"
)

// TestMain lets the compiled test binary double as its own re-exec target:
// when invoked with childEnvVar set (which Start does via /proc/self/exe),
// it runs the registered child and exits instead of running t.Run.
func TestMain(m *testing.M) {
	MaybeRunChild()
	os.Exit(m.Run())
}

const (
	echoChildName = "procsup-test-echo"
	failChildName = "procsup-test-fail"
	slowChildName = "procsup-test-slow"
)

func init() {
	Register(echoChildName, func() ([]byte, []int, error) {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, nil, err
		}
		w.WriteString("piped")
		w.Close()
		return []byte("hello from child"), []int{int(r.Fd())}, nil
	})
	Register(failChildName, func() ([]byte, []int, error) {
		return nil, nil, fmt.Errorf("child deliberately failed")
	})
	Register(slowChildName, func() ([]byte, []int, error) {
		time.Sleep(5 * time.Second)
		return []byte("too late"), nil, nil
	})
}

func TestCommunicateReturnsDataAndFd(t *testing.T) {
	child, err := (&Supervisor{}).Start(echoChildName, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	data, fds, err := child.Communicate(5 * time.Second)
	if err != nil {
		t.Fatalf("Communicate: %v", err)
	}
	if string(data) != "hello from child" {
		t.Errorf("data = %q, want %q", data, "hello from child")
	}
	if len(fds) != 1 {
		t.Fatalf("fds = %v, want exactly one", fds)
	}
	f := os.NewFile(uintptr(fds[0]), "received")
	defer f.Close()
	buf := make([]byte, 16)
	n, err := f.Read(buf)
	if err != nil {
		t.Fatalf("reading the fd handed back by the child: %v", err)
	}
	if string(buf[:n]) != "piped" {
		t.Errorf("fd content = %q, want %q", buf[:n], "piped")
	}
}

func TestCommunicateSurfacesChildError(t *testing.T) {
	child, err := (&Supervisor{}).Start(failChildName, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, _, err = child.Communicate(5 * time.Second)
	if err == nil {
		t.Fatal("Communicate returned nil error for a deliberately failing child")
	}
	if got, want := err.Error(), "procsup: child failed: child deliberately failed"; got != want {
		t.Errorf("error = %q, want %q", got, want)
	}
}

func TestCommunicateTimesOutAndKillsChild(t *testing.T) {
	child, err := (&Supervisor{}).Start(slowChildName, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	start := time.Now()
	_, _, err = child.Communicate(200 * time.Millisecond)
	if err == nil {
		t.Fatal("Communicate did not time out against a child that never replies")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Communicate took %v to time out, want well under the child's 5s sleep", elapsed)
	}
}

func TestUnknownChildNameReportsAnError(t *testing.T) {
	child, err := (&Supervisor{}).Start("does-not-exist", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, _, err = child.Communicate(5 * time.Second)
	if err == nil {
		t.Fatal("Communicate returned nil error for an unregistered child name")
	}
}

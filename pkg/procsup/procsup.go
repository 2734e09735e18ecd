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

// Package procsup runs registered work in a re-exec'd child process and
// collects its result over a control socket, optionally carrying file
// descriptors the child created (typically a kernel socket opened inside
// another network namespace). It is the Go analogue of a fork-and-pipe
// subprocess helper: since forking a multi-threaded Go runtime in place is
// unsafe, the "fork" is a re-exec of the running binary (via /proc/self/exe)
// with the child side selected by an environment variable, handed one end
// of a SOCK_SEQPACKET socketpair on fd 3.
package procsup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/netlinkgo/pkg/config"
	"github.com/google/netlinkgo/pkg/nlerrors"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

const childEnvVar = "NETLINKGO_PROCSUP_CHILD"

// ChildFunc is work executed inside the re-exec'd child. It returns raw
// bytes and optional file descriptors to hand back to the parent.
type ChildFunc func() ([]byte, []int, error)

var registry = map[string]ChildFunc{}

// Register associates name with fn so a later Supervisor.Start(name, ...) in a
// re-exec'd child can find it. Intended to be called from package init.
func Register(name string, fn ChildFunc) {
	registry[name] = fn
}

// MaybeRunChild checks whether this process was re-exec'd to run a
// registered child, and if so runs it, reports the result over fd 3, and
// exits the process. Call it first thing in main, before flag parsing or
// any other startup work: a normal invocation returns immediately.
func MaybeRunChild() {
	name := os.Getenv(childEnvVar)
	if name == "" {
		return
	}
	runChild(name)
	os.Exit(0)
}

func runChild(name string) {
	sock := os.NewFile(3, "procsup-child-sock")
	if sock == nil {
		os.Exit(1)
	}
	defer sock.Close()

	fn, ok := registry[name]
	if !ok {
		sendError(sock, fmt.Errorf("procsup: no child registered as %q", name))
		return
	}
	data, fds, err := fn()
	if err != nil {
		sendError(sock, err)
		return
	}
	if err := sendResult(sock, data, fds); err != nil {
		klog.Errorf("procsup: child %q: sending result: %v", name, err)
	}
}

// Child is a running re-exec'd helper process.
type Child struct {
	cmd        *exec.Cmd
	parentSock *os.File
}

// Supervisor spawns procsup helpers, honoring the process-wide spawn mode
// in pkg/config (config.ChildMode): by default it re-execs the running
// binary (config.ReexecSelf); setting config.ChildMode to
// config.ExternalCommand instead execs Command, for callers that ship the
// netns-entry helper as a separate, more tightly capability-scoped binary.
type Supervisor struct {
	Command string
}

// Start launches name as a child, selected by the childEnvVar the re-exec'd
// (or external) binary checks via MaybeRunChild, plus any extra
// environment variables the child reads to learn its parameters.
func (s *Supervisor) Start(name string, extraEnv []string) (*Child, error) {
	bin := "/proc/self/exe"
	if config.ChildMode == config.ExternalCommand {
		if s.Command == "" {
			return nil, fmt.Errorf("procsup: config.ChildMode is ExternalCommand but Supervisor.Command is empty")
		}
		bin = s.Command
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, &nlerrors.ResourceError{Kind: "procsup socketpair", Err: err}
	}
	parentSock := os.NewFile(uintptr(fds[0]), "procsup-parent-sock")
	childSock := os.NewFile(uintptr(fds[1]), "procsup-child-sock")

	cmd := exec.Command(bin)
	cmd.Env = append(append([]string{}, os.Environ()...), extraEnv...)
	cmd.Env = append(cmd.Env, childEnvVar+"="+name)
	cmd.ExtraFiles = []*os.File{childSock}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		parentSock.Close()
		childSock.Close()
		return nil, &nlerrors.ResourceError{Kind: "procsup start", Err: err}
	}
	childSock.Close()

	return &Child{cmd: cmd, parentSock: parentSock}, nil
}

// Communicate waits up to timeout for the child's single reply message. On
// timeout it kills the child and returns a *nlerrors.TimeoutError.
func (c *Child) Communicate(timeout time.Duration) ([]byte, []int, error) {
	type result struct {
		data []byte
		fds  []int
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, fds, err := recvMessage(c.parentSock)
		done <- result{data, fds, err}
	}()

	select {
	case r := <-done:
		c.parentSock.Close()
		_ = c.cmd.Wait()
		return r.data, r.fds, r.err
	case <-time.After(timeout):
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
		c.parentSock.Close()
		return nil, nil, &nlerrors.TimeoutError{Context: "procsup: communicate with child"}
	}
}

type resultKind byte

const (
	kindData resultKind = iota
	kindError
)

type errorDescriptor struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func sendResult(sock *os.File, data []byte, fds []int) error {
	buf := append([]byte{byte(kindData)}, data...)
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	return unix.Sendmsg(int(sock.Fd()), buf, oob, nil, 0)
}

func sendError(sock *os.File, err error) error {
	desc := errorDescriptor{Type: errorTypeName(err), Message: err.Error()}
	payload, marshalErr := json.Marshal(desc)
	if marshalErr != nil {
		payload = []byte(`{"type":"error","message":"procsup: failed to encode error"}`)
	}
	buf := append([]byte{byte(kindError)}, payload...)
	return unix.Sendmsg(int(sock.Fd()), buf, nil, nil, 0)
}

func errorTypeName(err error) string {
	switch err.(type) {
	case *nlerrors.ResourceError:
		return "ResourceError"
	case *nlerrors.TimeoutError:
		return "TimeoutError"
	case *nlerrors.NetlinkError:
		return "NetlinkError"
	default:
		return "error"
	}
}

// reconstructError rebuilds a matching nlerrors type for known
// descriptors, else falls back to a plain error carrying the message.
func reconstructError(desc errorDescriptor) error {
	switch desc.Type {
	case "ResourceError":
		return &nlerrors.ResourceError{Kind: "child", Err: fmt.Errorf("%s", desc.Message)}
	case "TimeoutError":
		return &nlerrors.TimeoutError{Context: desc.Message}
	default:
		return fmt.Errorf("procsup: child failed: %s", desc.Message)
	}
}

func recvMessage(sock *os.File) ([]byte, []int, error) {
	buf := make([]byte, 64*1024)
	oob := make([]byte, unix.CmsgSpace(4*4))

	n, oobn, _, _, err := unix.Recvmsg(int(sock.Fd()), buf, oob, 0)
	if err != nil {
		return nil, nil, &nlerrors.ResourceError{Kind: "procsup recvmsg", Err: err}
	}
	if n == 0 {
		return nil, nil, fmt.Errorf("procsup: child closed the control socket without replying")
	}

	var fds []int
	if oobn > 0 {
		cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return nil, nil, &nlerrors.ResourceError{Kind: "procsup cmsg parse", Err: err}
		}
		for _, cmsg := range cmsgs {
			rights, err := unix.ParseUnixRights(&cmsg)
			if err != nil {
				continue
			}
			fds = append(fds, rights...)
		}
	}

	kind := resultKind(buf[0])
	payload := append([]byte(nil), buf[1:n]...)
	switch kind {
	case kindData:
		return payload, fds, nil
	case kindError:
		var desc errorDescriptor
		if jsonErr := json.Unmarshal(payload, &desc); jsonErr != nil {
			return nil, fds, fmt.Errorf("procsup: child reported an error it failed to describe: %w", jsonErr)
		}
		return nil, fds, reconstructError(desc)
	default:
		return nil, nil, fmt.Errorf("procsup: unknown result kind %d from child", kind)
	}
}

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
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/google/netlinkgo/pkg/config"
	"github.com/google/netlinkgo/pkg/nlerrors"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

const (
	socketChildName = "netlinkgo-socket-in-netns"

	envNsPath = "NETLINKGO_PROCSUP_NSPATH"
	envDomain = "NETLINKGO_PROCSUP_DOMAIN"
	envType   = "NETLINKGO_PROCSUP_TYPE"
	envProto  = "NETLINKGO_PROCSUP_PROTO"
)

func init() {
	Register(socketChildName, socketInNamespaceChild)
}

// SocketInNamespace creates a socket(domain, typ, proto) inside the network
// namespace named ns and hands the resulting file descriptor back to this
// process. A bare name (no slash) is resolved against config.NetnsPath,
// matching iproute2's /var/run/netns convention; an absolute path is used
// as-is. When config.MockNetns is set the namespace switch is skipped
// entirely and the socket is opened in the caller's own namespace --
// callers running under test or without CAP_SYS_ADMIN get a socket back
// instead of a permission failure.
//
// Under the hood this spawns a helper process via Supervisor that enters
// the namespace and passes the fd back over SCM_RIGHTS, since the caller
// needs to keep running in its own namespace afterward and a single
// process cannot have two network namespaces active on the same thread at
// once.
func SocketInNamespace(ns string, domain, typ, proto int, timeout time.Duration) (int, error) {
	if config.MockNetns {
		fd, err := unix.Socket(domain, typ, proto)
		if err != nil {
			return -1, &nlerrors.ResourceError{Kind: "socket", Err: err}
		}
		return fd, nil
	}

	extraEnv := []string{
		envNsPath + "=" + resolveNsPath(ns),
		envDomain + "=" + strconv.Itoa(domain),
		envType + "=" + strconv.Itoa(typ),
		envProto + "=" + strconv.Itoa(proto),
	}
	sup := &Supervisor{}
	child, err := sup.Start(socketChildName, extraEnv)
	if err != nil {
		return -1, err
	}

	_, fds, err := child.Communicate(timeout)
	if err != nil {
		return -1, err
	}
	if len(fds) != 1 {
		for _, fd := range fds {
			os.NewFile(uintptr(fd), "leaked").Close()
		}
		return -1, fmt.Errorf("procsup: expected exactly one fd from %s, got %d", socketChildName, len(fds))
	}
	return fds[0], nil
}

func resolveNsPath(ns string) string {
	if filepath.IsAbs(ns) {
		return ns
	}
	return filepath.Join(config.NetnsPath, ns)
}

// socketInNamespaceChild runs inside the re-exec'd process: it locks the
// calling goroutine to its OS thread, enters the requested namespace, opens
// the socket, and returns the bare fd for procsup to pass back with
// SCM_RIGHTS. Grounded on the teacher's socketAt, generalized from a
// single-process thread-switch into a full child-process round trip since
// the caller here needs to keep running in its own namespace.
func socketInNamespaceChild() ([]byte, []int, error) {
	domain, err := strconv.Atoi(os.Getenv(envDomain))
	if err != nil {
		return nil, nil, fmt.Errorf("procsup: bad %s: %w", envDomain, err)
	}
	typ, err := strconv.Atoi(os.Getenv(envType))
	if err != nil {
		return nil, nil, fmt.Errorf("procsup: bad %s: %w", envType, err)
	}
	proto, err := strconv.Atoi(os.Getenv(envProto))
	if err != nil {
		return nil, nil, fmt.Errorf("procsup: bad %s: %w", envProto, err)
	}
	nsPath := os.Getenv(envNsPath)

	runtime.LockOSThread()
	// The process exits right after replying, so the thread is never
	// unlocked back to a namespace-switched state for reuse.

	ns, err := netns.GetFromPath(nsPath)
	if err != nil {
		return nil, nil, &nlerrors.ResourceError{Kind: "netns open", Err: fmt.Errorf("%s: %w", nsPath, err)}
	}
	defer ns.Close()

	if err := netns.Set(ns); err != nil {
		return nil, nil, &nlerrors.ResourceError{Kind: "netns enter", Err: err}
	}

	fd, err := unix.Socket(domain, typ, proto)
	if err != nil {
		return nil, nil, &nlerrors.ResourceError{Kind: "socket", Err: err}
	}
	return nil, []int{fd}, nil
}

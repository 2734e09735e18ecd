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

// Package nlerrors holds the error taxonomy of spec §7: one independent
// variant per failure mode, matched with errors.As rather than an
// inheritance hierarchy.
package nlerrors

import (
	"fmt"

	"github.com/google/netlinkgo/pkg/nlmsg"
	"golang.org/x/sys/unix"
)

// NetlinkError wraps an NLMSG_ERROR reply whose Code is non-zero -- a
// POSIX errno. ExtMessage/ExtOffset are populated from NLMSGERR_ATTR_MSG /
// NLMSGERR_ATTR_OFFS when the kernel sent an extended ACK.
type NetlinkError struct {
	Code       int
	ExtMessage string
	ExtOffset  int
}

func (e *NetlinkError) Error() string {
	if e.ExtMessage != "" {
		return fmt.Sprintf("netlink: %s (errno %d): %s", unix.ErrnoName(unix.Errno(e.Code)), e.Code, e.ExtMessage)
	}
	return fmt.Sprintf("netlink: %s (errno %d)", unix.ErrnoName(unix.Errno(e.Code)), e.Code)
}

// Is lets errors.Is(err, unix.ENOENT) and similar match against the
// underlying errno, without making NetlinkError an alias of syscall.Errno.
func (e *NetlinkError) Is(target error) bool {
	errno, ok := target.(unix.Errno)
	return ok && int(errno) == e.Code
}

// AttachNetlinkError sets msg.Err from an errno, parsing any extended-ACK
// TLVs present after the errno in msg.Data (spec §3 extended ACKs).
func AttachNetlinkError(msg *nlmsg.Message, errno int32) {
	ne := &NetlinkError{Code: int(errno)}
	if msg.Header.Flags&nlmsg.AcknowledgeTLVs != 0 && len(msg.Data) > 4 {
		// The ext-ack TLVs are read from just past the errno and a 16-byte
		// echoed header (the capped-echo layout); an echoed request payload
		// is not skipped.
		off := 4
		if len(msg.Data) >= 8+16 {
			off = 4 + 16
		}
		if off < len(msg.Data) {
			if ad, err := nlmsg.NewAttributeDecoder(msg.Data[off:]); err == nil {
				for ad.Next() {
					switch ad.Type() {
					case 1: // NLMSGERR_ATTR_MSG
						ne.ExtMessage = ad.String()
					case 2: // NLMSGERR_ATTR_OFFS
						ne.ExtOffset = int(ad.Uint32())
					}
				}
			}
		}
	}
	msg.Err = ne
}

// DumpInterrupted is returned when a dump's terminating NLMSG_DONE carries
// NLM_F_DUMP_INTR (spec §3).
type DumpInterrupted struct{ Sequence uint32 }

func (e *DumpInterrupted) Error() string {
	return fmt.Sprintf("netlink: dump for sequence %d was interrupted", e.Sequence)
}

// TimeoutError covers a state watchdog, a communicate() deadline, or a
// wait-for-state timeout (spec §7).
type TimeoutError struct{ Context string }

func (e *TimeoutError) Error() string { return fmt.Sprintf("timeout: %s", e.Context) }

// TransitionError is raised on an attempted illegal FSM move -- a
// programming bug that must fail loudly (spec §3/§9).
type TransitionError struct{ From, To string }

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s -> %s", e.From, e.To)
}

// ResourceError covers socket creation, namespace entry, or fd duplication
// failures (spec §7).
type ResourceError struct {
	Kind string
	Err  error
}

func (e *ResourceError) Error() string { return fmt.Sprintf("resource error (%s): %v", e.Kind, e.Err) }
func (e *ResourceError) Unwrap() error { return e.Err }

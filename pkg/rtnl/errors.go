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

package rtnl

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// NotFoundError reports that a GetX/SetX call targeted an object this
// package could not resolve to an index (e.g. SetLink on an unknown name).
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("rtnl: %s %q not found", e.Kind, e.Key) }

func errLinkNotFound(name string) error { return &NotFoundError{Kind: "link", Key: name} }

func isENOENT(err error) bool {
	return errors.Is(err, unix.ENODEV) || errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ESRCH)
}

func isEEXIST(err error) bool {
	return errors.Is(err, unix.EEXIST)
}

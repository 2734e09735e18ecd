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

package netlinksock

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"
)

// Ensure implements the idempotent present/absent verb pattern used
// throughout pkg/rtnl (spec §6 "ensure present/absent semantics"): get
// reports whether the target object already matches the desired state; if
// present is true and get says no, add runs; if present is false and get
// says yes, del runs. EEXIST and ENOENT from add/del are swallowed as
// already-satisfied rather than surfaced, matching iproute2's convention
// that re-applying a desired state is a no-op.
func Ensure(ctx context.Context, present bool, get func(context.Context) (bool, error), add, del func(context.Context) error) error {
	exists, err := get(ctx)
	if err != nil {
		return err
	}
	switch {
	case present && !exists:
		if err := add(ctx); err != nil && !errors.Is(err, unix.EEXIST) {
			return err
		}
	case !present && exists:
		if err := del(ctx); err != nil && !errors.Is(err, unix.ENOENT) {
			return err
		}
	}
	return nil
}

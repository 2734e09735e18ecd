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

import "dario.cat/mergo"

// mergeLinkSpec overlays patch onto base, leaving any zero-valued field in
// patch untouched (spec §6 "set only changes the fields the caller named").
// SetLink builds its ifinfomsg from the merged result so a caller doing
// SetLink(ctx, name, LinkSpec{MTU: 1400}) never clobbers an address or
// master the link already had.
func mergeLinkSpec(base, patch LinkSpec) (LinkSpec, error) {
	if err := mergo.Merge(&base, patch, mergo.WithOverride); err != nil {
		return base, err
	}
	return base, nil
}

// mergeRouteSpec overlays patch onto base the same way, used by SetRoute to
// patch an already-installed route.
func mergeRouteSpec(base, patch RouteSpec) (RouteSpec, error) {
	if err := mergo.Merge(&base, patch, mergo.WithOverride); err != nil {
		return base, err
	}
	return base, nil
}

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

package nlmsg

import "fmt"

// DecodeError names a single field decode failure: the required byte count
// against what was actually available. Attaching one to a Message never
// aborts decoding of sibling attributes (spec §4.1 error policy).
type DecodeError struct {
	Field     string
	Needed    int
	Available int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("nlmsg: decode %s: need %d bytes, have %d", e.Field, e.Needed, e.Available)
}

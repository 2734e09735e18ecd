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

package dhcp4

import "fmt"

// OptionMissingError names a DHCP option a lease property needed that the
// server did not send.
type OptionMissingError struct {
	Option uint8
}

func (e *OptionMissingError) Error() string {
	return fmt.Sprintf("dhcp4: required option %d missing from message", e.Option)
}

// ProtocolError reports a response whose message type doesn't fit the
// handler that received it (e.g. an OFFER delivered to the RENEWING
// handler).
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("dhcp4: protocol error: %s", e.Detail) }

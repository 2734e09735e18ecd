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

package dhcpclient

import "github.com/prometheus/client_golang/prometheus"

// Metrics named per spec §2: request latency, retransmits, and lease
// acquisition/transition counts, grounded on the retrieved
// internal/metrics package's CounterVec-plus-Register pattern.
var (
	leasesAcquired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dhcpclient_leases_total",
		Help: "DHCPv4 leases acquired, by trigger (bound, renewed, rebound).",
	}, []string{"trigger"})

	transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dhcpclient_fsm_transitions_total",
		Help: "FSM state transitions, by destination state.",
	}, []string{"state"})

	retransmits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dhcpclient_retransmits_total",
		Help: "DHCPv4 messages retransmitted while awaiting a reply, by message type.",
	}, []string{"message_type"})

	requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dhcpclient_request_latency_seconds",
		Help:    "Time from sending a DISCOVER/REQUEST to receiving the matching OFFER/ACK.",
		Buckets: prometheus.DefBuckets,
	}, []string{"message_type"})
)

// RegisterMetrics registers the client's collectors with registry, for a
// caller (cmd/dhcp-client) that exposes them over a /metrics handler.
func RegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(leasesAcquired, transitions, retransmits, requestLatency)
}

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

import (
	"time"

	"github.com/google/netlinkgo/pkg/dhcpclient/lease"

	"k8s.io/klog/v2"
)

// leaseTimers owns the three one-shot timers a bound lease runs: renewal
// (T1), rebinding (T2), and expiration. Grounded on the retrieved
// pyroute2/dhcp/timers.py's LeaseTimers.
type leaseTimers struct {
	renewal, rebinding, expiration *time.Timer
}

func (t *leaseTimers) cancel() {
	for _, timer := range []*time.Timer{t.renewal, t.rebinding, t.expiration} {
		if timer != nil {
			timer.Stop()
		}
	}
	t.renewal, t.rebinding, t.expiration = nil, nil, nil
}

// arm cancels any running timers and schedules fresh ones from l's
// derived properties, skipping any that are already due or infinite.
func (t *leaseTimers) arm(l *lease.Lease, renew, rebind, expire func()) {
	t.cancel()
	now := time.Now()
	t.renewal = scheduleIfPositive(l.RenewalIn(now), renew, "renewal")
	t.rebinding = scheduleIfPositive(l.RebindingIn(now), rebind, "rebinding")
	t.expiration = scheduleIfPositive(l.ExpirationIn(now), expire, "expiration")
}

func scheduleIfPositive(d time.Duration, fn func(), name string) *time.Timer {
	if d <= 0 {
		klog.V(1).Infof("dhcpclient: %s timer is infinite or already past, not scheduling", name)
		return nil
	}
	klog.V(1).Infof("dhcpclient: scheduling %s timer in %s", name, d)
	return time.AfterFunc(d, fn)
}

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

package lease

import (
	"encoding/json"

	"go.etcd.io/bbolt"
	"k8s.io/klog/v2"
)

var leaseBucket = []byte("leases")

// BoltSink persists leases for every interface in one bbolt database file,
// keyed by interface name. Intended for hosts running several
// pkg/dhcpclient instances (one per interface) that want a single durable
// store instead of one JSON file each.
type BoltSink struct {
	db *bbolt.DB
}

// OpenBoltSink opens (creating if absent) a bbolt database at path.
func OpenBoltSink(path string) (*BoltSink, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(leaseBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltSink{db: db}, nil
}

func (s *BoltSink) Close() error { return s.db.Close() }

func (s *BoltSink) Save(l *Lease) error {
	b, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(leaseBucket).Put([]byte(l.Interface), b)
	})
}

func (s *BoltSink) Load(iface string) (*Lease, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(leaseBucket).Get([]byte(iface))
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	l := &Lease{}
	if err := json.Unmarshal(raw, l); err != nil {
		klog.Warningf("lease: bolt record for %s is not a valid lease, ignoring: %v", iface, err)
		return nil, nil
	}
	return l, nil
}

var _ Sink = (*BoltSink)(nil)

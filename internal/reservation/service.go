// Copyright 2024 rescache Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package reservation tracks which keys are currently checked out so that a
// maintenance pass can act on a key only when nobody else holds it.
//
// Design:
//   - Registry is split into shards (power of two), each a mutex-protected
//     map[K]*entry. The shard mutex guards only the map, never a caller action.
//   - Every entry has its own gate mutex. Reserve, Release and
//     TryWithReservation take the gate of their key only, so unrelated keys
//     never wait on each other.
//   - TryWithReservation increments, checks for sole ownership, runs the
//     action and decrements while holding the gate. A Reserve arriving during
//     the action waits for the gate and succeeds afterwards.
//
// The same caller must not hold a reservation on a key while calling
// TryWithReservation for that key: the action will never run.
package reservation

import (
	"errors"
	"hash/maphash"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrAlreadyReleased is returned by Release when the reservation was already released.
var ErrAlreadyReleased = errors.New("reservation already released")

const defaultShards = 32

// entry is the per-key state.
// pins is guarded by the owning shard's mutex; holders by gate.
type entry struct {
	gate    sync.Mutex
	holders int
	pins    int
}

type shard[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

// Service maps keys to reservation state.
//
// Thread-safe: all methods may be called concurrently.
type Service[K comparable] struct {
	seed   maphash.Seed
	shards []*shard[K]
	mask   uint64
}

// Option configures a Service.
type Option func(*options)

type options struct {
	shards int
}

// WithShards sets the number of registry shards. It is rounded up to a power of two.
func WithShards(n int) Option {
	return func(o *options) {
		o.shards = n
	}
}

// New creates an empty reservation service.
func New[K comparable](opts ...Option) *Service[K] {
	o := options{shards: defaultShards}
	for _, opt := range opts {
		opt(&o)
	}

	n := 1
	for n < o.shards {
		n <<= 1
	}

	s := &Service[K]{
		seed:   maphash.MakeSeed(),
		shards: make([]*shard[K], n),
		mask:   uint64(n - 1),
	}
	for i := range s.shards {
		s.shards[i] = &shard[K]{entries: make(map[K]*entry)}
	}
	return s
}

func (s *Service[K]) shardFor(key K) *shard[K] {
	return s.shards[maphash.Comparable(s.seed, key)&s.mask]
}

// pin returns the entry for key, creating it if absent, and keeps it in the
// registry until the matching unpin.
func (s *Service[K]) pin(key K) *entry {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		e = &entry{}
		sh.entries[key] = e
	}
	e.pins++
	return e
}

func (s *Service[K]) unpin(key K, e *entry) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e.pins--
	if e.pins == 0 {
		delete(sh.entries, key)
	}
}

// Reserve registers interest in key and returns a handle that keeps key from
// being treated as evictable until it is released. It never fails. If a
// sole-ownership action is running for key, Reserve waits for it to finish.
func (s *Service[K]) Reserve(key K) *Reservation[K] {
	e := s.pin(key)

	e.gate.Lock()
	e.holders++
	e.gate.Unlock()

	return &Reservation[K]{
		svc:   s,
		key:   key,
		entry: e,
		id:    uuid.New(),
	}
}

// TryWithReservation runs action only if no other reservation for key is
// outstanding. The check and the action happen under the key's gate, so a
// reservation that already exists always causes a skip and a new one waits
// until the action returns. Reports whether action ran.
func (s *Service[K]) TryWithReservation(key K, action func()) bool {
	e := s.pin(key)
	defer s.unpin(key, e)

	e.gate.Lock()
	defer e.gate.Unlock()

	e.holders++
	defer func() { e.holders-- }()

	if e.holders != 1 {
		return false
	}
	action()
	return true
}

// Holders returns the number of outstanding reservations for key.
func (s *Service[K]) Holders(key K) int {
	sh := s.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.entries[key]
	sh.mu.Unlock()
	if !ok {
		return 0
	}

	e.gate.Lock()
	defer e.gate.Unlock()
	return e.holders
}

// Stats describes the registry.
type Stats struct {
	Keys    int // keys with a registry entry
	Holders int // outstanding reservations across all keys
}

// Stats returns a point-in-time view of the registry. Shards are visited one
// at a time so the totals are not a consistent snapshot under concurrent use.
func (s *Service[K]) Stats() Stats {
	var st Stats
	for _, sh := range s.shards {
		sh.mu.Lock()
		entries := make([]*entry, 0, len(sh.entries))
		for _, e := range sh.entries {
			entries = append(entries, e)
		}
		sh.mu.Unlock()

		st.Keys += len(entries)
		for _, e := range entries {
			e.gate.Lock()
			st.Holders += e.holders
			e.gate.Unlock()
		}
	}
	return st
}

// Reservation is a held claim on a key. It is owned by the caller of Reserve
// and must be released exactly once, usually with defer.
type Reservation[K comparable] struct {
	svc      *Service[K]
	key      K
	entry    *entry
	id       uuid.UUID
	released atomic.Bool
}

// Key returns the reserved key.
func (r *Reservation[K]) Key() K {
	return r.key
}

// ID returns a unique identifier for this reservation, for diagnostics.
func (r *Reservation[K]) ID() string {
	return r.id.String()
}

// Released reports whether Release has been called.
func (r *Reservation[K]) Released() bool {
	return r.released.Load()
}

// Release gives up the claim. Calls after the first return ErrAlreadyReleased
// and leave the count for other holders untouched.
// An outstanding reservation means no action can be running for the key, so
// the gate is only ever held briefly here.
func (r *Reservation[K]) Release() error {
	if !r.released.CompareAndSwap(false, true) {
		return ErrAlreadyReleased
	}

	r.entry.gate.Lock()
	r.entry.holders--
	r.entry.gate.Unlock()

	r.svc.unpin(r.key, r.entry)
	return nil
}

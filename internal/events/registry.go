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

// Package events broadcasts "clear all content" requests to registered listeners.
package events

import (
	"fmt"
	"reflect"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Listener is notified when content should be cleared.
type Listener interface {
	// OnClearContent is called for a clear request. clearMaps asks for cached
	// map and tile data to be dropped as well.
	OnClearContent(clearMaps bool) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(clearMaps bool) error

// OnClearContent calls f.
func (f ListenerFunc) OnClearContent(clearMaps bool) error {
	return f(clearMaps)
}

type registration struct {
	id       uint64
	listener Listener
}

// Registry holds clear-content listeners.
//
// Thread-safe: registration happens under a mutex, notification iterates a
// snapshot outside of it so listeners may register or unregister from a callback.
type Registry struct {
	mu        sync.Mutex
	listeners []registration
	nextID    uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds l and returns a function that removes exactly this registration.
func (r *Registry) Register(l Listener) (unregister func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.listeners = append(r.listeners, registration{id: id, listener: l})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(func(reg registration) bool { return reg.id == id }) })
	}
}

// Unregister removes the first registration of l. Listeners whose dynamic type
// is not comparable, such as a ListenerFunc, cannot be found this way and are
// left registered; use the function returned by Register for those.
func (r *Registry) Unregister(l Listener) {
	if t := reflect.TypeOf(l); t == nil || !t.Comparable() {
		return
	}
	r.remove(func(reg registration) bool { return reg.listener == l })
}

func (r *Registry) remove(match func(registration) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, reg := range r.listeners {
		if match(reg) {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// ClearContent notifies every listener registered at the time of the call.
// A failing or panicking listener is logged and does not stop the others.
// Returns the number of listeners that failed.
func (r *Registry) ClearContent(clearMaps bool) int {
	r.mu.Lock()
	snapshot := make([]registration, len(r.listeners))
	copy(snapshot, r.listeners)
	r.mu.Unlock()

	failed := 0
	for _, reg := range snapshot {
		if err := notify(reg.listener, clearMaps); err != nil {
			log.WithError(err).WithField("listener", fmt.Sprintf("%T", reg.listener)).
				Error("error occurred during clear content")
			failed++
		}
	}
	return failed
}

func notify(l Listener, clearMaps bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.OnClearContent(clearMaps)
}

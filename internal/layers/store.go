// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.
// Package layers holds the named image, label and mask layers that operators read from
// and write their results into.
package layers

import (
	"sort"
	"sync"

	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/ops"
)

// A named layer with its display settings
type Layer struct {
	Name           string      `json:"name"`
	Kind           ops.Kind    `json:"kind"`
	Image          *fits.Image `json:"-"`
	Colormap       string      `json:"colormap,omitempty"`
	ContrastLimits []float32   `json:"contrastLimits,omitempty"`
	Opacity        float32     `json:"opacity"`
	Contour        int         `json:"contour,omitempty"` // outline width for labels, 0 fills
}

// Summary of a layer for listings
type Info struct {
	Name       string   `json:"name"`
	Kind       ops.Kind `json:"kind"`
	Dimensions string   `json:"dimensions"`
	Colormap   string   `json:"colormap,omitempty"`
}

func (l *Layer) Info() Info {
	dims := ""
	if l.Image != nil {
		dims = l.Image.DimensionsToString()
	}
	return Info{Name: l.Name, Kind: l.Kind, Dimensions: dims, Colormap: l.Colormap}
}

// Type of a store change
type EventType string

const (
	EventAdded   EventType = "added"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
)

// Notification of a store change
type Event struct {
	Type EventType
	Name string
}

// A named layer collection
type Store interface {
	// Returns the layer with the given name
	Get(name string) (*Layer, bool)
	// Replaces the data of an existing layer with the same name, keeping its display
	// settings, or adds the layer. Returns true if the layer was created
	Put(l *Layer) (created bool)
	// Layer names in insertion order
	Names() []string
	// Removes the named layer, returns true if it existed
	Remove(name string) bool
	// Registers a callback invoked after every change
	Subscribe(fn func(Event))
}

// In-memory layer store, safe for concurrent use
type MemStore struct {
	mutex       sync.RWMutex
	layers      map[string]*Layer
	order       []string
	subscribers []func(Event)
}

var _ Store = (*MemStore)(nil) // this type is a Store

func NewMemStore() *MemStore {
	return &MemStore{layers: map[string]*Layer{}}
}

func (s *MemStore) Get(name string) (*Layer, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	l, ok := s.layers[name]
	return l, ok
}

func (s *MemStore) Put(l *Layer) (created bool) {
	// stored layers are never modified, readers may hold them without the lock
	merged := *l
	s.mutex.Lock()
	if old, ok := s.layers[l.Name]; ok {
		merged.Opacity, merged.Contour = old.Opacity, old.Contour
		if old.Colormap != "" {
			merged.Colormap = old.Colormap
		}
		if l.ContrastLimits == nil {
			merged.ContrastLimits = old.ContrastLimits
		}
	} else {
		s.order = append(s.order, l.Name)
		created = true
	}
	s.layers[l.Name] = &merged
	subs := s.subscriberList()
	s.mutex.Unlock()

	ev := Event{Type: EventUpdated, Name: l.Name}
	if created {
		ev.Type = EventAdded
	}
	for _, fn := range subs {
		fn(ev)
	}
	return created
}

func (s *MemStore) Names() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]string(nil), s.order...)
}

// Layer names of the given kinds, sorted alphabetically
func NamesOfKind(s Store, kinds ...ops.Kind) []string {
	var res []string
	for _, name := range s.Names() {
		l, ok := s.Get(name)
		if !ok {
			continue
		}
		for _, k := range kinds {
			if l.Kind == k {
				res = append(res, name)
				break
			}
		}
	}
	sort.Strings(res)
	return res
}

func (s *MemStore) Remove(name string) bool {
	s.mutex.Lock()
	_, ok := s.layers[name]
	if ok {
		delete(s.layers, name)
		for i, n := range s.order {
			if n == name {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	subs := s.subscriberList()
	s.mutex.Unlock()

	if ok {
		for _, fn := range subs {
			fn(Event{Type: EventRemoved, Name: name})
		}
	}
	return ok
}

func (s *MemStore) Subscribe(fn func(Event)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Copy of the subscriber list. Callers must hold the mutex
func (s *MemStore) subscriberList() []func(Event) {
	subs := make([]func(Event), len(s.subscribers))
	copy(subs, s.subscribers)
	return subs
}

/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package schema

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sneldb/sneldb/snelerr"
)

// Registry is the in-memory, rw-locked view of every defined event_type,
// backed by a Store for durability. Writers are DEFINE; readers are every
// Store/Query.
type Registry struct {
	mu      sync.RWMutex
	store   *Store
	byType  map[string]*Schema
	byUID   map[string]*Schema
}

// OpenRegistry loads (or creates) the schema store at path and replays it.
func OpenRegistry(path string) (*Registry, error) {
	st, err := OpenStore(path)
	if err != nil {
		return nil, err
	}
	records, _, err := st.Load()
	if err != nil {
		return nil, err
	}
	r := &Registry{store: st, byType: map[string]*Schema{}, byUID: map[string]*Schema{}}
	for _, rec := range records {
		s, ok := r.byType[rec.EventType]
		if !ok {
			s = &Schema{EventType: rec.EventType, UID: rec.UID, Fields: map[string]FieldType{}}
			r.byType[rec.EventType] = s
			r.byUID[rec.UID] = s
		}
		// append-only: later records for the same uid only add fields,
		// never remove them.
		for name, f := range rec.Fields {
			s.Fields[name] = f
		}
	}
	return r, nil
}

// Define registers a new event_type. Duplicate definitions with identical
// field sets are idempotent no-ops (matching a CREATE-IF-NOT-EXISTS
// posture); a duplicate definition with a DIFFERENT field set is a
// BadRequest.
func (r *Registry) Define(eventType string, fields map[string]FieldType) (*Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byType[eventType]; ok {
		if sameFields(existing.Fields, fields) {
			return existing, nil
		}
		return nil, snelerr.New(snelerr.BadRequest, "duplicate definition for event type: "+eventType)
	}
	uid := uuid.NewString()
	rec := Record{EventType: eventType, UID: uid, Fields: fields}
	if err := r.store.Append(rec); err != nil {
		return nil, err
	}
	s := &Schema{EventType: eventType, UID: uid, Fields: cloneFields(fields)}
	r.byType[eventType] = s
	r.byUID[uid] = s
	return s, nil
}

func sameFields(a, b map[string]FieldType) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		other, ok := b[k]
		if !ok {
			return false
		}
		av, _ := json.Marshal(toWire(v))
		bv, _ := json.Marshal(toWire(other))
		if string(av) != string(bv) {
			return false
		}
	}
	return true
}

func cloneFields(fields map[string]FieldType) map[string]FieldType {
	out := make(map[string]FieldType, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Lookup returns the Schema for an event_type, or ok=false.
func (r *Registry) Lookup(eventType string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byType[eventType]
	return s, ok
}

// LookupUID returns the Schema whose uid is uid, or ok=false. Every
// on-disk artifact is keyed by uid, so this is the hot path for the read
// engine resolving a plan's columns.
func (r *Registry) LookupUID(uid string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUID[uid]
	return s, ok
}

// Validate checks a decoded JSON payload against the schema: unknown
// fields rejected, mandatory fields required, enum variants checked,
// nullable optionals permitted.
func (s *Schema) Validate(payload map[string]any) error {
	for name, v := range payload {
		ft, ok := s.Fields[name]
		if !ok {
			return snelerr.New(snelerr.BadRequest, "unknown field: "+name)
		}
		if err := validateValue(name, ft, v); err != nil {
			return err
		}
	}
	for name, ft := range s.Fields {
		if _, present := payload[name]; !present && !ft.Nullable() {
			return snelerr.New(snelerr.BadRequest, "missing mandatory field: "+name)
		}
	}
	return nil
}

func validateValue(name string, ft FieldType, v any) error {
	if v == nil {
		if ft.Nullable() {
			return nil
		}
		return snelerr.New(snelerr.BadRequest, "field is not optional: "+name)
	}
	if ft.Kind == KindOptional {
		return validateValue(name, *ft.Inner, v)
	}
	switch ft.Kind {
	case KindString, KindI32Date:
		if _, ok := v.(string); !ok {
			return snelerr.New(snelerr.BadRequest, "field must be a string: "+name)
		}
	case KindU64, KindI64, KindF64:
		if _, ok := v.(float64); !ok {
			return snelerr.New(snelerr.BadRequest, "field must be numeric: "+name)
		}
	case KindBool:
		if _, ok := v.(bool); !ok {
			return snelerr.New(snelerr.BadRequest, "field must be a bool: "+name)
		}
	case KindEnum:
		str, ok := v.(string)
		if !ok || ft.VariantIndex(str) < 0 {
			return snelerr.New(snelerr.BadRequest, "field is not a valid enum variant: "+name)
		}
	}
	return nil
}

// Snapshot returns a copy of every currently defined schema, keyed by
// event_type, for seeding a new shard.Worker at startup.
func (r *Registry) Snapshot() map[string]*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Schema, len(r.byType))
	for k, v := range r.byType {
		out[k] = v
	}
	return out
}

// Close releases the underlying store handle.
func (r *Registry) Close() error {
	return r.store.Close()
}

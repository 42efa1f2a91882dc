// Package registry implements the Microservice Registry: a mapping from
// service id to registration record, queryable by id-set and by availability.
package registry

import (
	"sync"
	"time"
)

// Status is one of the states a registered microservice record can hold.
type Status string

const (
	StatusRegistered   Status = "Registered"
	StatusJoining      Status = "Joining"
	StatusReady        Status = "Ready"
	StatusDisconnected Status = "Disconnected"
)

// Record is a Microservice Record (spec §3).
type Record struct {
	ServiceID    string
	Endpoint     string
	Status       Status
	RegisteredAt time.Time
	Metadata     map[string]string
}

func (r Record) isAvailable() bool {
	return r.Status != StatusDisconnected
}

// clone returns a value copy with its own Metadata map, so a caller can never
// mutate a registry entry's map through a returned Record.
func (r Record) clone() Record {
	c := r
	c.Metadata = make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		c.Metadata[k] = v
	}
	return c
}

// Registry is the thread-safe service_id -> Record mapping of spec §4.2.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Record
}

func New() *Registry {
	return &Registry{services: make(map[string]Record)}
}

// Register inserts or replaces the record for serviceID. On replace, endpoint
// and metadata supersede and registered_at resets — sessions that already
// captured an older snapshot are structurally unaffected, since a snapshot is
// a value copy taken by GetByIDs, not a live reference (spec §4.2, §9).
func (r *Registry) Register(serviceID, endpoint string, metadata map[string]string) Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	if metadata == nil {
		metadata = map[string]string{}
	}
	record := Record{
		ServiceID:    serviceID,
		Endpoint:     endpoint,
		Status:       StatusRegistered,
		RegisteredAt: time.Now().UTC(),
		Metadata:     metadata,
	}
	r.services[serviceID] = record
	return record.clone()
}

// Get returns the record for serviceID, if any.
func (r *Registry) Get(serviceID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.services[serviceID]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// GetByIDs returns the records for each of ids, in order, along with the
// subset of ids that have no record at all — the caller treats any missing
// id as "required service unavailable" (spec §4.2, §7 InvalidRequest).
func (r *Registry) GetByIDs(ids []string) (found []Record, missing []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range ids {
		rec, ok := r.services[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		found = append(found, rec.clone())
	}
	return found, missing
}

// ListAvailable returns every record whose status is not Disconnected.
func (r *Registry) ListAvailable() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.services))
	for _, rec := range r.services {
		if rec.isAvailable() {
			out = append(out, rec.clone())
		}
	}
	return out
}

// MarkStatus updates a record's status in place. Private to the orchestrator
// per spec §4.2; exported because the orchestrator lives in a sibling
// package, but never called from internal/api.
func (r *Registry) MarkStatus(serviceID string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.services[serviceID]
	if !ok {
		return
	}
	rec.Status = status
	r.services[serviceID] = rec
}

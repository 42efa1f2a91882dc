// Package session implements the Session Store: the central session record
// and a thread-safe in-memory mapping from session id to record.
package session

import (
	"time"

	"github.com/rosielabs/sessioncore/internal/registry"
)

// Status is one of the states in the diagram of spec §4.5.
type Status string

const (
	StatusCreating           Status = "Creating"
	StatusWaitingForServices Status = "WaitingForServices"
	StatusReady              Status = "Ready"
	StatusActive             Status = "Active"
	StatusTerminating        Status = "Terminating"
	StatusTerminated         Status = "Terminated"
)

// RoomConnection is the handle to the live RTC monitoring attachment. It is
// owned exclusively by the session while it exists and must be released on
// termination (spec §3). The orchestrator defines the concrete type that
// satisfies this interface (internal/rtcgateway.MonitorHandle); session only
// needs to know it can be closed.
type RoomConnection interface {
	Close() error
}

// Session is the central entity of spec §3.
type Session struct {
	ID        string
	RoomName  string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time

	ClientToken string

	// RequiredServices is a snapshot of the registry taken at creation time;
	// registry mutations after creation must never affect it (spec §3, §4.2).
	RequiredServices []registry.Record

	// ReadyServices is the set of service ids observed to have joined.
	ReadyServices map[string]bool

	Metadata map[string]string

	RoomConnection RoomConnection
}

// New builds a session in the Creating state. id and roomName are assumed
// already resolved by the caller (the orchestrator generates both).
func New(id, roomName string, required []registry.Record, metadata map[string]string) *Session {
	now := time.Now().UTC()
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Session{
		ID:               id,
		RoomName:         roomName,
		Status:           StatusCreating,
		CreatedAt:        now,
		UpdatedAt:        now,
		RequiredServices: required,
		ReadyServices:    map[string]bool{},
		Metadata:         metadata,
	}
}

// Clone returns a deep-enough copy safe to hand to a reader outside the
// store's lock: scalar fields copy by value, and the three collections
// (RequiredServices, ReadyServices, Metadata) are copied so the caller cannot
// observe or cause a data race against later mutation.
func (s *Session) Clone() *Session {
	clone := *s
	clone.RequiredServices = append([]registry.Record(nil), s.RequiredServices...)
	clone.ReadyServices = make(map[string]bool, len(s.ReadyServices))
	for k, v := range s.ReadyServices {
		clone.ReadyServices[k] = v
	}
	clone.Metadata = make(map[string]string, len(s.Metadata))
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	return &clone
}

// SetStatus updates Status and bumps UpdatedAt, preserving the invariant that
// UpdatedAt is monotone non-decreasing (spec §3).
func (s *Session) SetStatus(status Status) {
	s.Status = status
	s.touch()
}

func (s *Session) touch() {
	now := time.Now().UTC()
	if now.Before(s.UpdatedAt) {
		now = s.UpdatedAt
	}
	s.UpdatedAt = now
}

// MarkServiceReady records service id as joined. Returns true if this call
// actually changed ready state (idempotency for duplicate join events, spec
// §4.5(d)).
func (s *Session) MarkServiceReady(serviceID string) bool {
	if s.ReadyServices[serviceID] {
		return false
	}
	s.ReadyServices[serviceID] = true
	s.touch()
	return true
}

// MarkServiceNotReady removes service id from ready state (used on
// ParticipantLeft for a required service, spec §4.7).
func (s *Session) MarkServiceNotReady(serviceID string) bool {
	if !s.ReadyServices[serviceID] {
		return false
	}
	delete(s.ReadyServices, serviceID)
	s.touch()
	return true
}

// AllServicesReady reports whether ReadyServices covers every required
// service id (spec §3 invariant, §4.5 transition WaitingForServices -> Ready).
func (s *Session) AllServicesReady() bool {
	for _, svc := range s.RequiredServices {
		if !s.ReadyServices[svc.ServiceID] {
			return false
		}
	}
	return true
}

// PendingServices returns the required service ids not yet in ReadyServices,
// a derived projection used by the status endpoint and tests (supplemented
// from the original's get_pending_services).
func (s *Session) PendingServices() []string {
	pending := make([]string, 0, len(s.RequiredServices))
	for _, svc := range s.RequiredServices {
		if !s.ReadyServices[svc.ServiceID] {
			pending = append(pending, svc.ServiceID)
		}
	}
	return pending
}

// IsRequiredService reports whether id names one of this session's required
// services, used by the event handler to classify participant identities
// (spec §4.4, §4.7).
func (s *Session) IsRequiredService(id string) bool {
	for _, svc := range s.RequiredServices {
		if svc.ServiceID == id {
			return true
		}
	}
	return false
}

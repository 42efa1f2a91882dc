// Package apierrors implements the RFC 7807 error taxonomy the orchestrator,
// registry and store use to report failures up to internal/api.
package apierrors

import (
	"fmt"
	"net/http"
)

// Kind classifies an error independently of its HTTP status, so callers that
// don't have access to an http.ResponseWriter (retry loops, the orchestrator's
// internal logging) can still branch on it.
type Kind string

const (
	KindSessionNotFound       Kind = "SessionNotFound"
	KindInvalidRequest        Kind = "InvalidRequest"
	KindRtcTransport          Kind = "RtcTransport"
	KindMicroserviceTransport Kind = "MicroserviceTransport"
	KindJoinTimeout           Kind = "JoinTimeout"
	KindInternal              Kind = "Internal"
)

var statusByKind = map[Kind]int{
	KindSessionNotFound:       http.StatusNotFound,
	KindInvalidRequest:        http.StatusBadRequest,
	KindRtcTransport:          http.StatusInternalServerError,
	KindMicroserviceTransport: http.StatusInternalServerError,
	KindJoinTimeout:           http.StatusRequestTimeout,
	KindInternal:              http.StatusInternalServerError,
}

// Error is a standard API error (RFC 7807). It implements the Go error
// interface so it can travel through ordinary error-returning call chains.
type Error struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
	kind     Kind
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

// Kind returns the error's classification, used by internal/api to map any
// orchestrator/registry/store error to an HTTP status without a per-handler
// switch statement.
func (e *Error) Kind() Kind {
	return e.kind
}

// New builds an Error of the given kind with the given detail and request
// instance (typically the request path).
func New(kind Kind, detail, instance string) *Error {
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &Error{
		Type:     fmt.Sprintf("https://sessioncore.internal/errors/%s", kind),
		Title:    string(kind),
		Status:   status,
		Detail:   detail,
		Instance: instance,
		kind:     kind,
	}
}

func NewSessionNotFound(detail, instance string) *Error {
	return New(KindSessionNotFound, detail, instance)
}

func NewInvalidRequest(detail, instance string) *Error {
	return New(KindInvalidRequest, detail, instance)
}

func NewRtcTransport(detail, instance string) *Error {
	return New(KindRtcTransport, detail, instance)
}

func NewMicroserviceTransport(detail, instance string) *Error {
	return New(KindMicroserviceTransport, detail, instance)
}

func NewJoinTimeout(detail, instance string) *Error {
	return New(KindJoinTimeout, detail, instance)
}

func NewInternal(detail, instance string) *Error {
	return New(KindInternal, detail, instance)
}

// As extracts an *Error from any error value, so handlers can recover the
// Kind/Status from an error returned by a lower layer.
func As(err error) (*Error, bool) {
	apiErr, ok := err.(*Error)
	return apiErr, ok
}

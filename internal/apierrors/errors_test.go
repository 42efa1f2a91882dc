package apierrors

import (
	"net/http"
	"testing"
)

func TestNewSetsStatusByKind(t *testing.T) {
	cases := []struct {
		kind   Kind
		status int
	}{
		{KindSessionNotFound, http.StatusNotFound},
		{KindInvalidRequest, http.StatusBadRequest},
		{KindRtcTransport, http.StatusInternalServerError},
		{KindMicroserviceTransport, http.StatusInternalServerError},
		{KindJoinTimeout, http.StatusRequestTimeout},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		err := New(tc.kind, "detail", "/instance")
		if err.Status != tc.status {
			t.Errorf("kind %s: got status %d, want %d", tc.kind, err.Status, tc.status)
		}
		if err.Kind() != tc.kind {
			t.Errorf("kind %s: Kind() returned %s", tc.kind, err.Kind())
		}
	}
}

func TestErrorImplementsErrorInterface(t *testing.T) {
	err := NewSessionNotFound("session abc123 not found", "/api/v1/sessions/abc123")
	var _ error = err

	want := "SessionNotFound: session abc123 not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestAsExtractsAPIError(t *testing.T) {
	var err error = NewInvalidRequest("missing user_identity", "/api/v1/create-session")

	apiErr, ok := As(err)
	if !ok {
		t.Fatal("As() returned ok=false for an *Error value")
	}
	if apiErr.Kind() != KindInvalidRequest {
		t.Errorf("got kind %s, want %s", apiErr.Kind(), KindInvalidRequest)
	}
}

func TestAsRejectsPlainError(t *testing.T) {
	_, ok := As(errPlain("boom"))
	if ok {
		t.Fatal("As() returned ok=true for a non-apierrors error")
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }

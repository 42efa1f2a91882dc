// Package eventbus implements the Event Bus: a two-layer fan-out multiplexer
// with a global broadcast stream and lazily-created per-session streams,
// bounded buffers, and a drop-the-lagging-subscriber policy.
package eventbus

// Kind tags the variant of a Session Event (spec §3).
type Kind string

const (
	KindSessionCreated       Kind = "SessionCreated"
	KindMicroserviceJoined   Kind = "MicroserviceJoined"
	KindClientJoined         Kind = "ClientJoined"
	KindSessionReady         Kind = "SessionReady"
	KindSessionStatusChanged Kind = "SessionStatusChanged"
	KindError                Kind = "Error"
)

// Event is a tagged variant carrying the session id and variant-specific
// fields, exactly as spec §3 enumerates them.
type Event struct {
	Kind      Kind   `json:"type"`
	SessionID string `json:"session_id"`

	RoomName    string `json:"room_name,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	RtcURL      string `json:"rtc_url,omitempty"`

	ServiceID string `json:"service_id,omitempty"`

	UserIdentity string `json:"user_identity,omitempty"`

	AllJoined bool `json:"all_joined,omitempty"`

	Status string `json:"status,omitempty"`

	Message string `json:"message,omitempty"`
}

func SessionCreated(sessionID, roomName, accessToken, rtcURL string) Event {
	return Event{Kind: KindSessionCreated, SessionID: sessionID, RoomName: roomName, AccessToken: accessToken, RtcURL: rtcURL}
}

func MicroserviceJoined(sessionID, serviceID string) Event {
	return Event{Kind: KindMicroserviceJoined, SessionID: sessionID, ServiceID: serviceID}
}

func ClientJoined(sessionID, userIdentity string) Event {
	return Event{Kind: KindClientJoined, SessionID: sessionID, UserIdentity: userIdentity}
}

func SessionReady(sessionID string, allJoined bool) Event {
	return Event{Kind: KindSessionReady, SessionID: sessionID, AllJoined: allJoined}
}

func StatusChanged(sessionID, status string) Event {
	return Event{Kind: KindSessionStatusChanged, SessionID: sessionID, Status: status}
}

func Err(sessionID, message string) Event {
	return Event{Kind: KindError, SessionID: sessionID, Message: message}
}

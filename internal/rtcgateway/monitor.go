package rtcgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ParticipantKind classifies an identity observed on the monitor connection
// (spec §4.4).
type ParticipantKind string

const (
	ParticipantMicroservice ParticipantKind = "microservice"
	ParticipantClient       ParticipantKind = "client"
)

// EventKind tags the variant of a RoomEvent delivered by the monitor.
type EventKind string

const (
	EventParticipantJoined EventKind = "ParticipantJoined"
	EventParticipantLeft   EventKind = "ParticipantLeft"
	EventRoomClosed        EventKind = "RoomClosed"
	EventTransportError    EventKind = "TransportError"
)

// RoomEvent is one typed event surfaced by a monitor connection.
type RoomEvent struct {
	Kind     EventKind
	Identity string
	Cause    error
}

// MonitorHandle delivers a lazy sequence of RoomEvents over Events() while
// held; dropping it (Close) closes the monitoring connection (spec §4.4).
// It satisfies session.RoomConnection.
type MonitorHandle interface {
	Events() <-chan RoomEvent
	Close() error
}

// wireFrame is the JSON wire format this repo defines for the monitor's event
// stream, one frame per WebSocket message — the idiomatic-Go analogue of the original's
// native LiveKit RoomEvent stream, since no LiveKit Go SDK exists in this
// module's dependency surface.
type wireFrame struct {
	Type     string `json:"type"`
	Identity string `json:"identity"`
	Kind     string `json:"kind"`
}

// wsMonitor is the gorilla/websocket-backed MonitorHandle implementation.
type wsMonitor struct {
	conn   *websocket.Conn
	events chan RoomEvent
	done   chan struct{}
}

// OpenMonitor connects to the RTC server's event-subscription endpoint as a
// hidden, non-publishing, non-subscribing, room-admin participant (spec §4.5
// step 7) and decodes each WebSocket message as one JSON frame into a typed
// RoomEvent; a message that does not decode is skipped.
func (g *HTTPGateway) OpenMonitor(ctx context.Context, room, orchestratorIdentity string, monitorTTL time.Duration) (MonitorHandle, error) {
	token, err := g.MintToken(orchestratorIdentity, room, []Grant{GrantRoomJoin, GrantRoomAdmin, GrantHidden}, monitorTTL)
	if err != nil {
		return nil, fmt.Errorf("mint monitor token: %w", err)
	}

	wsURL := toWebSocketURL(g.baseURL) + "/rooms/" + room + "/monitor?token=" + token
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("open monitor connection: %w", err)
	}

	m := &wsMonitor{
		conn:   conn,
		events: make(chan RoomEvent, 64),
		done:   make(chan struct{}),
	}
	go m.readLoop()
	return m, nil
}

func (m *wsMonitor) readLoop() {
	defer close(m.events)
	for {
		_, payload, err := m.conn.ReadMessage()
		if err != nil {
			select {
			case m.events <- RoomEvent{Kind: EventTransportError, Cause: err}:
			case <-m.done:
			}
			return
		}

		var frame wireFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}

		event := RoomEvent{Kind: EventKind(frame.Type), Identity: frame.Identity}
		select {
		case m.events <- event:
		case <-m.done:
			return
		}

		if event.Kind == EventRoomClosed {
			return
		}
	}
}

func (m *wsMonitor) Events() <-chan RoomEvent {
	return m.events
}

func (m *wsMonitor) Close() error {
	close(m.done)
	return m.conn.Close()
}

// ClassifyParticipant applies spec §4.4's identity convention: identities in
// requiredServiceIDs are microservices; identities starting with
// orchestratorPrefix are self and should be ignored by the caller; everything
// else is a client.
func ClassifyParticipant(identity, orchestratorPrefix string, requiredServiceIDs map[string]bool) (kind ParticipantKind, isSelf bool) {
	if strings.HasPrefix(identity, orchestratorPrefix) {
		return "", true
	}
	if requiredServiceIDs[identity] {
		return ParticipantMicroservice, false
	}
	return ParticipantClient, false
}

func toWebSocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}

// Package rtcgateway adapts the orchestrator to the external RTC room
// server's room-control API, token minting, and participant-event monitor
// connection (spec §4.4).
package rtcgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// Grant is one capability a minted token can carry (spec Glossary).
type Grant string

const (
	GrantRoomJoin       Grant = "room_join"
	GrantCanPublish     Grant = "can_publish"
	GrantCanSubscribe   Grant = "can_subscribe"
	GrantCanPublishData Grant = "can_publish_data"
	GrantRoomAdmin      Grant = "room_admin"
	GrantHidden         Grant = "hidden"
)

// RoomOptions fixes empty-room timeout and participant cap for create_room
// (spec §4.4).
type RoomOptions struct {
	EmptyTimeout    time.Duration
	MaxParticipants int
}

// ErrRoomAlreadyExists and ErrRoomNotFound let callers distinguish the two
// named non-transport outcomes of create_room/delete_room (spec §4.4).
var (
	ErrRoomAlreadyExists = fmt.Errorf("room already exists")
	ErrRoomNotFound      = fmt.Errorf("room not found")
)

// Gateway is the capability interface the orchestrator depends on (spec §9:
// "model as capability interfaces ... inject at construction"). Tests supply
// a fake.
type Gateway interface {
	CreateRoom(ctx context.Context, name string, opts RoomOptions) error
	DeleteRoom(ctx context.Context, name string) error
	MintToken(identity, room string, grants []Grant, ttl time.Duration) (string, error)
	OpenMonitor(ctx context.Context, room, orchestratorIdentity string, monitorTTL time.Duration) (MonitorHandle, error)
}

// HTTPGateway is the production Gateway: room administration over HTTP, JWT
// token minting, and a WebSocket monitor connection — the idiomatic-Go
// transport this repo picks for the wire protocol spec §4.4 leaves delegated,
// grounded in the original's LiveKit `RoomClient` REST surface.
type HTTPGateway struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *http.Client

	createRoomRetries uint
}

func NewHTTPGateway(baseURL, apiKey, apiSecret string) *HTTPGateway {
	return &HTTPGateway{
		baseURL:           strings.TrimRight(baseURL, "/"),
		apiKey:            apiKey,
		apiSecret:         apiSecret,
		client:            &http.Client{Timeout: 10 * time.Second},
		createRoomRetries: 3,
	}
}

type createRoomBody struct {
	Name            string `json:"name"`
	EmptyTimeout    int    `json:"empty_timeout"`
	MaxParticipants int    `json:"max_participants"`
}

// CreateRoom retries up to createRoomRetries times with exponential backoff
// capped at a few seconds (spec §4.5 step 4).
func (g *HTTPGateway) CreateRoom(ctx context.Context, name string, opts RoomOptions) error {
	body, err := json.Marshal(createRoomBody{
		Name:              name,
		EmptyTimeout:      int(opts.EmptyTimeout.Seconds()),
		MaxParticipants: opts.MaxParticipants,
	})
	if err != nil {
		return fmt.Errorf("encode create_room body: %w", err)
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/rooms", bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			g.setAuthHeader(req)
			req.Header.Set("Content-Type", "application/json")

			resp, err := g.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusConflict:
				return retry.Unrecoverable(ErrRoomAlreadyExists)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return nil
			default:
				payload, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("create_room: status %d: %s", resp.StatusCode, string(payload))
			}
		},
		retry.Context(ctx),
		retry.Attempts(g.createRoomRetries+1),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(5*time.Second),
	)
}

// DeleteRoom is idempotent from the caller's view: not-found counts as
// success (spec §4.4).
func (g *HTTPGateway) DeleteRoom(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, g.baseURL+"/rooms/"+name, nil)
	if err != nil {
		return err
	}
	g.setAuthHeader(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}
	payload, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("delete_room: status %d: %s", resp.StatusCode, string(payload))
}

func (g *HTTPGateway) setAuthHeader(req *http.Request) {
	req.Header.Set("X-Api-Key", g.apiKey)
}

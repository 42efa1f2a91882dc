package rtcgateway

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// videoGrantClaims mirrors the original's livekit_api::access_token::VideoGrants
// shape as a JWT claim set: identity, room, the enumerated grant flags, and a
// standard expiry.
type videoGrantClaims struct {
	jwt.RegisteredClaims
	Video videoGrants `json:"video"`
}

type videoGrants struct {
	RoomJoin       bool   `json:"room_join,omitempty"`
	Room           string `json:"room,omitempty"`
	CanPublish     bool   `json:"can_publish,omitempty"`
	CanSubscribe   bool   `json:"can_subscribe,omitempty"`
	CanPublishData bool   `json:"can_publish_data,omitempty"`
	RoomAdmin      bool   `json:"room_admin,omitempty"`
	Hidden         bool   `json:"hidden,omitempty"`
}

// MintToken signs a JWT carrying identity, room, the requested grants, and
// ttl — the idiomatic-Go equivalent of the original's AccessToken/VideoGrants
// (spec §4.4).
func (g *HTTPGateway) MintToken(identity, room string, grants []Grant, ttl time.Duration) (string, error) {
	video := videoGrants{Room: room}
	for _, grant := range grants {
		switch grant {
		case GrantRoomJoin:
			video.RoomJoin = true
		case GrantCanPublish:
			video.CanPublish = true
		case GrantCanSubscribe:
			video.CanSubscribe = true
		case GrantCanPublishData:
			video.CanPublishData = true
		case GrantRoomAdmin:
			video.RoomAdmin = true
		case GrantHidden:
			video.Hidden = true
		}
	}

	now := time.Now()
	claims := videoGrantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    g.apiKey,
		},
		Video: video,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(g.apiSecret))
}

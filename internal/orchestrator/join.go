package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rosielabs/sessioncore/internal/apierrors"
	"github.com/rosielabs/sessioncore/internal/registry"
	"github.com/rosielabs/sessioncore/internal/session"
)

var joinHTTPClient = &http.Client{}

type joinRoomRequest struct {
	RoomName        string `json:"room_name"`
	SessionID       string `json:"session_id"`
	ServiceIdentity string `json:"service_identity"`
	AccessToken     string `json:"access_token"`
	RtcURL          string `json:"rtc_url"`
}

// runJoinDispatch implements the per-service join-dispatch loop of spec §4.6:
// retries the join-room POST until the service's id enters ready_services,
// the session leaves WaitingForServices, or the overall join deadline fires.
// A 2xx reply is not authoritative; only a monitor ParticipantJoined event
// marks the service ready, so this loop keeps re-dispatching harmlessly.
func (o *Orchestrator) runJoinDispatch(ctx context.Context, sessionID string, svc registry.Record, token, roomName string) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer o.sem.Release(1)

	o.registry.MarkStatus(svc.ServiceID, registry.StatusJoining)

	ticker := time.NewTicker(o.opts.JoinRetryInterval)
	defer ticker.Stop()

	for {
		sess, err := o.store.Get(sessionID)
		if err != nil || sess.Status != session.StatusWaitingForServices {
			return // spec §4.6 step 5: session left WaitingForServices, exit quietly
		}
		if sess.ReadyServices[svc.ServiceID] {
			return
		}

		o.dispatchJoinCall(ctx, sessionID, svc, token, roomName)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) dispatchJoinCall(ctx context.Context, sessionID string, svc registry.Record, token, roomName string) {
	body, err := json.Marshal(joinRoomRequest{
		RoomName:        roomName,
		SessionID:       sessionID,
		ServiceIdentity: svc.ServiceID,
		AccessToken:     token,
		RtcURL:          o.rtcURL,
	})
	if err != nil {
		o.logger.Error("encode join-room body failed", "session_id", sessionID, "service_id", svc.ServiceID, "error", err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, o.opts.JoinCallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, svc.Endpoint+"/join-room", bytes.NewReader(body))
	if err != nil {
		o.logger.Error("build join-room request failed", "session_id", sessionID, "service_id", svc.ServiceID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := joinHTTPClient.Do(req)
	if err != nil {
		// Classified as MicroserviceTransport (spec §7): retried here, never
		// surfaced past this loop on its own — only an exhausted join deadline
		// escalates to JoinTimeout.
		apiErr := apierrors.NewMicroserviceTransport(fmt.Sprintf("join-room call failed: %v", err), svc.Endpoint+"/join-room")
		o.logger.Warn("join-room call failed, will retry", "session_id", sessionID, "service_id", svc.ServiceID, "kind", apiErr.Kind(), "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		apiErr := apierrors.NewMicroserviceTransport(fmt.Sprintf("join-room call returned status %d: %s", resp.StatusCode, payload), svc.Endpoint+"/join-room")
		o.logger.Warn("join-room call returned error status, will retry", "session_id", sessionID, "service_id", svc.ServiceID, "kind", apiErr.Kind(), "status", resp.StatusCode, "body", string(payload))
		return
	}

	o.logger.Info("join-room call acknowledged, awaiting monitor confirmation", "session_id", sessionID, "service_id", svc.ServiceID)
}

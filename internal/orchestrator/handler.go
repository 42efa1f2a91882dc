package orchestrator

import (
	"context"

	"github.com/rosielabs/sessioncore/internal/eventbus"
	"github.com/rosielabs/sessioncore/internal/registry"
	"github.com/rosielabs/sessioncore/internal/rtcgateway"
	"github.com/rosielabs/sessioncore/internal/session"
)

// drainMonitor feeds every event from the monitor's sequence into
// handleRTCEvent for sessionID, until the monitor closes or sessionCtx is
// cancelled (spec §4.5 step 7, §9: the task never holds a strong handle to
// the session object, only its id).
func (o *Orchestrator) drainMonitor(sessionCtx context.Context, sessionID string, monitor rtcgateway.MonitorHandle) {
	for {
		select {
		case <-sessionCtx.Done():
			return
		case event, ok := <-monitor.Events():
			if !ok {
				return
			}
			o.handleRTCEvent(sessionID, event)
		}
	}
}

// handleRTCEvent implements spec §4.7 for a single monitor event.
func (o *Orchestrator) handleRTCEvent(sessionID string, event rtcgateway.RoomEvent) {
	switch event.Kind {
	case rtcgateway.EventParticipantJoined:
		o.handleParticipantJoined(sessionID, event.Identity)
	case rtcgateway.EventParticipantLeft:
		o.handleParticipantLeft(sessionID, event.Identity)
	case rtcgateway.EventRoomClosed:
		o.logger.Warn("room closed", "session_id", sessionID)
		o.bus.Publish(eventbus.Err(sessionID, "room closed"))
		go o.Terminate(context.Background(), sessionID, "room closed")
	case rtcgateway.EventTransportError:
		o.logger.Error("monitor transport error", "session_id", sessionID, "error", event.Cause)
		o.bus.Publish(eventbus.Err(sessionID, "rtc transport error"))
		go o.Terminate(context.Background(), sessionID, "rtc transport error")
	}
}

func (o *Orchestrator) handleParticipantJoined(sessionID, identity string) {
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return
	}
	if _, isSelf := rtcgateway.ClassifyParticipant(identity, orchestratorIdentityPrefix+sessionID, nil); isSelf {
		return
	}

	if sess.IsRequiredService(identity) {
		o.registry.MarkStatus(identity, registry.StatusReady)
		if _, err := o.store.Update(sessionID, func(s *session.Session) error {
			s.MarkServiceReady(identity)
			return nil
		}); err != nil {
			return
		}
		o.bus.Publish(eventbus.MicroserviceJoined(sessionID, identity))
		o.maybeAdvanceToReady(sessionID)
		return
	}

	// Client.
	o.bus.Publish(eventbus.ClientJoined(sessionID, identity))
	if sess.Status == session.StatusReady {
		o.transitionAndPublish(sessionID, session.StatusActive, nil)
	}
}

func (o *Orchestrator) handleParticipantLeft(sessionID, identity string) {
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return
	}

	if _, isSelf := rtcgateway.ClassifyParticipant(identity, orchestratorIdentityPrefix+sessionID, nil); isSelf {
		return
	}

	if sess.IsRequiredService(identity) {
		o.registry.MarkStatus(identity, registry.StatusDisconnected)
		if _, err := o.store.Update(sessionID, func(s *session.Session) error {
			s.MarkServiceNotReady(identity)
			return nil
		}); err != nil {
			return
		}
		// Open question resolution (DESIGN.md): a required service leaving
		// while Ready goes straight to Terminating rather than demoting
		// back to WaitingForServices.
		if sess.Status == session.StatusReady || sess.Status == session.StatusActive {
			go o.Terminate(context.Background(), sessionID, "required service disconnected")
		}
		return
	}

	// Client leaving while Active ends the session (spec §4.5 "Active:
	// client leaves / terminate -> Terminating").
	if sess.Status == session.StatusActive {
		go o.Terminate(context.Background(), sessionID, "client disconnected")
	}
}

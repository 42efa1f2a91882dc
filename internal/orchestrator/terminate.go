package orchestrator

import (
	"context"

	"github.com/rosielabs/sessioncore/internal/eventbus"
	"github.com/rosielabs/sessioncore/internal/session"
)

// Terminate implements the 7-step termination protocol of spec §4.8. It is
// idempotent: calling it twice on the same session (e.g. from both an
// explicit terminate() call and a concurrently-firing deadline) only runs the
// teardown once.
func (o *Orchestrator) Terminate(ctx context.Context, sessionID, reason string) {
	sess, transitioned := o.transitionAndPublish(sessionID, session.StatusTerminating, nil)
	if sess == nil || !transitioned {
		// Either the session is already gone, or another caller already won
		// the race to transition it into Terminating and is running this
		// same teardown right now.
		return
	}
	o.logger.Info("terminating session", "session_id", sessionID, "reason", reason)

	// Step 2 & 3: cancel outstanding tasks (join-dispatch loops and the
	// monitor drain, via their session-scoped context) and drop the monitor
	// handle. The join and client deadline timers are not stopped; one that
	// fires after teardown finds the session gone from the Store and returns.
	rt := o.runtimeFor(sessionID)
	if rt != nil {
		rt.cancel()
		if rt.monitor != nil {
			if err := rt.monitor.Close(); err != nil {
				o.logger.Warn("error closing monitor handle", "session_id", sessionID, "error", err)
			}
		}
		o.mu.Lock()
		delete(o.runtimes, sessionID)
		o.mu.Unlock()
	}

	// Step 4: best-effort delete_room; swallow and log failures, per spec
	// §4.4's termination-time policy.
	if err := o.gateway.DeleteRoom(ctx, sess.RoomName); err != nil {
		o.logger.Warn("delete_room failed during termination, ignoring", "session_id", sessionID, "room_name", sess.RoomName, "error", err)
	}

	// Step 5: remove the session from the Store.
	if err := o.store.Delete(sessionID); err != nil {
		o.logger.Warn("session already removed from store", "session_id", sessionID, "error", err)
	}

	// Step 6: publish the terminal status.
	o.bus.Publish(eventbus.StatusChanged(sessionID, string(session.StatusTerminated)))

	// Step 7: tear down the per-session event-bus channel once it has no
	// subscribers.
	o.bus.CleanupSession(sessionID)
}

// TerminateAll cancels every live session's tasks; used by internal/server
// during graceful shutdown (spec §5's cancellation guarantees extended to
// process exit).
func (o *Orchestrator) TerminateAll(ctx context.Context) {
	for _, sess := range o.store.List() {
		o.Terminate(ctx, sess.ID, "process shutdown")
	}
}

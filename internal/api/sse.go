package api

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rosielabs/sessioncore/internal/eventbus"
	"github.com/rosielabs/sessioncore/internal/session"
)

// keepAliveInterval matches the original's 15-second SSE keep-alive comment
// so proxies between the client and this service don't close an idle stream.
const keepAliveInterval = 15 * time.Second

// SessionEvents streams a single session's event-bus subscription as
// server-sent events until the client disconnects, the session's Terminated
// status has been sent, or the subscriber lagged and its channel was closed.
func (h *Handlers) SessionEvents(ctx *gin.Context) {
	sub := h.Bus.SubscribeSession(ctx.Param("id"))
	h.streamEvents(ctx, sub)
}

// GlobalEvents streams every event published on the bus, across all
// sessions.
func (h *Handlers) GlobalEvents(ctx *gin.Context) {
	sub := h.Bus.SubscribeGlobal()
	h.streamEvents(ctx, sub)
}

func (h *Handlers) streamEvents(ctx *gin.Context, sub *eventbus.Subscription) {
	defer sub.Close()

	ctx.Writer.Header().Set("Content-Type", "text/event-stream")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")

	ctx.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return false // closed: lagged-out or the bus shut it down
			}
			writeSSEEvent(ctx, event)
			// A per-session stream (the only route with an :id param) ends
			// once that session's Terminated status has been sent.
			if ctx.Param("id") != "" && event.Kind == eventbus.KindSessionStatusChanged && event.Status == string(session.StatusTerminated) {
				return false
			}
			return true
		case <-ctx.Request.Context().Done():
			return false
		case <-time.After(keepAliveInterval):
			fmt.Fprint(ctx.Writer, ": keep-alive\n\n")
			return true
		}
	})
}

func writeSSEEvent(ctx *gin.Context, event eventbus.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h := fmt.Sprintf("event: error\ndata: %q\n\n", err.Error())
		fmt.Fprint(ctx.Writer, h)
		return
	}
	fmt.Fprintf(ctx.Writer, "event: %s\ndata: %s\n\n", event.Kind, payload)
}

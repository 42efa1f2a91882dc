// Package api wires the HTTP surface of the session orchestration core: a
// gin.Engine exposing microservice registration, session lifecycle, and the
// event-stream and snapshot endpoints external callers use to observe it.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/rosielabs/sessioncore/internal/eventbus"
	"github.com/rosielabs/sessioncore/internal/orchestrator"
	"github.com/rosielabs/sessioncore/internal/registry"
	"github.com/rosielabs/sessioncore/internal/session"
)

// Handlers groups the dependencies every route handler needs. It plays the
// role the teacher's Controller/Service pair plays, collapsed into one type
// since this service has a single cohesive domain rather than several.
type Handlers struct {
	Orchestrator *orchestrator.Orchestrator
	Store        *session.Store
	Registry     *registry.Registry
	Bus          *eventbus.Bus
	Logger       *slog.Logger
}

// NewRouter builds the gin.Engine and registers every route named in
// SPEC_FULL.md §6's endpoint table.
func NewRouter(h *Handlers) *gin.Engine {
	r := gin.Default()

	r.GET("/health", h.HealthCheck)

	v1 := r.Group("/api/v1")
	v1.POST("/microservices/register", h.RegisterMicroservice)
	v1.GET("/microservices", h.ListMicroservices)
	v1.POST("/create-session", h.CreateSession)
	v1.GET("/sessions/:id", h.GetSession)
	v1.POST("/sessions/:id/terminate", h.TerminateSession)
	v1.GET("/sessions/:id/events", h.SessionEvents)
	v1.GET("/events", h.GlobalEvents)

	return r
}

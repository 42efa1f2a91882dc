package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rosielabs/sessioncore/internal/apierrors"
	"github.com/rosielabs/sessioncore/internal/orchestrator"
	"github.com/rosielabs/sessioncore/internal/session"
)

// Version is reported by HealthCheck (spec §6).
const Version = "1.0.0"

// HealthCheck reports the service as up. No dependency checks: the store,
// registry and bus are in-process and cannot be independently unavailable.
func (h *Handlers) HealthCheck(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
	})
}

// registerMicroserviceRequest is the body of POST /api/v1/microservices/register.
type registerMicroserviceRequest struct {
	ServiceID string            `json:"service_id" binding:"required"`
	Endpoint  string            `json:"endpoint" binding:"required"`
	Metadata  map[string]string `json:"metadata"`
}

func (h *Handlers) RegisterMicroservice(ctx *gin.Context) {
	var req registerMicroserviceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.sendError(ctx, apierrors.NewInvalidRequest("invalid JSON: "+err.Error(), ctx.FullPath()))
		return
	}

	record := h.Registry.Register(req.ServiceID, req.Endpoint, req.Metadata)
	h.Logger.Info("microservice registered", "service_id", record.ServiceID, "endpoint", record.Endpoint)
	ctx.JSON(http.StatusOK, gin.H{
		"success":    true,
		"service_id": record.ServiceID,
		"message":    "Microservice registered successfully",
	})
}

func (h *Handlers) ListMicroservices(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"services": h.Registry.ListAvailable()})
}

// createSessionRequest is the body of POST /api/v1/create-session.
type createSessionRequest struct {
	UserIdentity      string            `json:"user_identity" binding:"required"`
	UserName          string            `json:"user_name"`
	RoomName          string            `json:"room_name"`
	Metadata          map[string]string `json:"metadata"`
	RequiredServices []string          `json:"required_services"`
}

func (h *Handlers) CreateSession(ctx *gin.Context) {
	var req createSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.sendError(ctx, apierrors.NewInvalidRequest("invalid JSON: "+err.Error(), ctx.FullPath()))
		return
	}

	result, err := h.Orchestrator.CreateSession(ctx.Request.Context(), orchestrator.CreateSessionRequest{
		UserIdentity:      req.UserIdentity,
		UserName:          req.UserName,
		RoomName:          req.RoomName,
		Metadata:          req.Metadata,
		RequiredServices: req.RequiredServices,
	})
	if err != nil {
		h.sendError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"session_id":   result.SessionID,
		"room_name":    result.RoomName,
		"client_token": result.ClientToken,
		"rtc_url":      result.RtcURL,
		"status":       result.Status,
	})
}

func (h *Handlers) GetSession(ctx *gin.Context) {
	sess, err := h.Store.Get(ctx.Param("id"))
	if err != nil {
		h.sendError(ctx, toAPIError(ctx, err))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"session_id":        sess.ID,
		"room_name":         sess.RoomName,
		"status":            sess.Status,
		"created_at":        sess.CreatedAt,
		"updated_at":        sess.UpdatedAt,
		"required_services": sess.RequiredServices,
		"ready_services":    sess.ReadyServices,
		"pending_services":  sess.PendingServices(),
	})
}

func (h *Handlers) TerminateSession(ctx *gin.Context) {
	id := ctx.Param("id")
	if _, err := h.Store.Get(id); err != nil {
		h.sendError(ctx, toAPIError(ctx, err))
		return
	}
	h.Orchestrator.Terminate(ctx.Request.Context(), id, "terminate requested via API")
	ctx.JSON(http.StatusAccepted, gin.H{"session_id": id, "status": session.StatusTerminating})
}

// sendError writes err as an RFC 7807 body, using its Kind to pick the HTTP
// status if err is already an *apierrors.Error, otherwise falling back to 500
// (spec §7's error handling design).
func (h *Handlers) sendError(ctx *gin.Context, err error) {
	apiErr, ok := apierrors.As(err)
	if !ok {
		apiErr = apierrors.NewInternal(err.Error(), ctx.FullPath())
	}
	h.Logger.Error(apiErr.Title, "detail", apiErr.Detail, "instance", apiErr.Instance)
	ctx.JSON(apiErr.Status, apiErr)
}

// toAPIError maps a session.ErrNotFound into the apierrors taxonomy; other
// errors pass through for sendError's fallback handling.
func toAPIError(ctx *gin.Context, err error) error {
	if _, ok := err.(*session.ErrNotFound); ok {
		return apierrors.NewSessionNotFound(err.Error(), ctx.FullPath())
	}
	return err
}

// Package orchestrator implements the Session Orchestrator: the state
// machine and join-rendezvous protocol that composes the Session Store,
// Microservice Registry, Event Bus and RTC Gateway (spec §4.5-§4.8).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/rosielabs/sessioncore/internal/apierrors"
	"github.com/rosielabs/sessioncore/internal/config"
	"github.com/rosielabs/sessioncore/internal/eventbus"
	"github.com/rosielabs/sessioncore/internal/registry"
	"github.com/rosielabs/sessioncore/internal/rtcgateway"
	"github.com/rosielabs/sessioncore/internal/session"
)

const (
	orchestratorIdentityPrefix = "session-manager-"
	clientTokenTTL             = 6 * time.Hour
	microserviceTokenTTL       = 6 * time.Hour
	monitorTokenTTL            = 24 * time.Hour

	defaultJoinRetryInterval = 30 * time.Second
	defaultClientDeadline    = 300 * time.Second

	roomEmptyTimeout    = 5 * time.Minute
	roomMaxParticipants = 50
)

// Options controls the orchestrator's timeouts and, through Workers, the size
// of the semaphore that bounds concurrent join-dispatch loops (New falls back
// to 4 when Workers is not positive).
type Options struct {
	JoinCallTimeout   time.Duration // per-call HTTP timeout, spec §5 (microservices.registration_timeout)
	JoinDeadline      time.Duration // spec §4.5 step 10 (microservices.join_timeout)
	ClientDeadline    time.Duration // spec §4.5 step 11
	JoinRetryInterval time.Duration // spec §4.6 step 3
	Workers           int64
}

// OptionsFromConfig derives Options from the loaded configuration document.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		JoinCallTimeout:   cfg.RegistrationTimeoutDuration(),
		JoinDeadline:      cfg.JoinTimeoutDuration(),
		ClientDeadline:    defaultClientDeadline,
		JoinRetryInterval: defaultJoinRetryInterval,
		Workers:           int64(cfg.Server.Workers),
	}
}

// runtime holds the per-session bookkeeping that spec §9 says must not be
// reachable through a strong handle from a background task: only the session
// id is passed to spawned goroutines, which always come back through the
// Store for the live record.
type runtime struct {
	cancel  context.CancelFunc
	monitor rtcgateway.MonitorHandle
}

// Orchestrator owns the state machine and composes the Store, Registry, Bus
// and Gateway (spec §2).
type Orchestrator struct {
	store    *session.Store
	registry *registry.Registry
	bus      *eventbus.Bus
	gateway  rtcgateway.Gateway
	opts     Options
	sem      *semaphore.Weighted
	logger   *slog.Logger
	rtcURL   string

	mu       sync.Mutex
	runtimes map[string]*runtime
}

func New(store *session.Store, reg *registry.Registry, bus *eventbus.Bus, gateway rtcgateway.Gateway, rtcURL string, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		registry: reg,
		bus:      bus,
		gateway:  gateway,
		opts:     opts,
		sem:      semaphore.NewWeighted(opts.Workers),
		logger:   logger,
		rtcURL:   rtcURL,
	}
}

// CreateSessionRequest is the inbound create-session command (spec §4.5,
// §6 POST /api/v1/create-session).
type CreateSessionRequest struct {
	UserIdentity      string
	UserName          string
	RoomName          string
	Metadata          map[string]string
	RequiredServices []string
}

// CreateSessionResult is the return value of spec §4.5: "{session_id,
// room_name, client_token, rtc_url, status}".
type CreateSessionResult struct {
	SessionID   string
	RoomName    string
	ClientToken string
	RtcURL      string
	Status      session.Status
}

// CreateSession implements the 11-step protocol of spec §4.5.
func (o *Orchestrator) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResult, error) {
	if req.UserIdentity == "" {
		return nil, apierrors.NewInvalidRequest("user_identity is required", "/api/v1/create-session")
	}

	// Step 1: generate session_id and room_name.
	sessionID := uuid.NewString()
	roomName := req.RoomName
	if roomName == "" {
		roomName = "room-" + sessionID
	}

	// Step 2: snapshot required services from the Registry.
	required, err := o.snapshotRequiredServices(req.RequiredServices)
	if err != nil {
		return nil, err
	}

	// Step 3: build the Session record in Creating, insert into the Store.
	sess := session.New(sessionID, roomName, required, req.Metadata)
	o.store.Put(sess)
	o.logger.Info("session created", "session_id", sessionID, "room_name", roomName, "required_services", len(required))

	// Step 4: create_room with retry; on exhausted retries, Terminating.
	if err := o.gateway.CreateRoom(ctx, roomName, rtcgateway.RoomOptions{
		EmptyTimeout:    roomEmptyTimeout,
		MaxParticipants: roomMaxParticipants,
	}); err != nil {
		o.logger.Error("create_room failed", "session_id", sessionID, "error", err)
		o.Terminate(context.Background(), sessionID, "room creation failed")
		return nil, apierrors.NewRtcTransport(fmt.Sprintf("failed to create room: %v", err), "/api/v1/create-session")
	}

	// Step 5: mint the client token. The token's identity is the room
	// participant identity "client-<session id>", not req.UserIdentity: the
	// orchestrator only needs to recognize "the one client slot for this
	// session" on the monitor connection (ClassifyParticipant treats any
	// non-self, non-required-service identity as the client), and the original
	// mints client tokens the same way. UserIdentity/UserName stay request-only
	// fields — required for parity with the original's create_session payload,
	// not yet surfaced anywhere a caller-chosen display identity would matter.
	clientToken, err := o.gateway.MintToken(
		"client-"+sessionID, roomName,
		[]rtcgateway.Grant{rtcgateway.GrantRoomJoin, rtcgateway.GrantCanPublish, rtcgateway.GrantCanSubscribe, rtcgateway.GrantCanPublishData},
		clientTokenTTL,
	)
	if err != nil {
		o.logger.Error("mint client token failed", "session_id", sessionID, "error", err)
		o.Terminate(context.Background(), sessionID, "client token mint failed")
		return nil, apierrors.NewInternal(fmt.Sprintf("failed to mint client token: %v", err), "/api/v1/create-session")
	}
	if _, err := o.store.Update(sessionID, func(s *session.Session) error {
		s.ClientToken = clientToken
		return nil
	}); err != nil {
		return nil, apierrors.NewInternal(err.Error(), "/api/v1/create-session")
	}

	// Step 6: mint microservice tokens, one per required service.
	serviceTokens := make(map[string]string, len(required))
	for _, svc := range required {
		tok, err := o.gateway.MintToken(
			svc.ServiceID, roomName,
			[]rtcgateway.Grant{rtcgateway.GrantRoomJoin, rtcgateway.GrantCanPublish, rtcgateway.GrantCanSubscribe, rtcgateway.GrantCanPublishData},
			microserviceTokenTTL,
		)
		if err != nil {
			o.logger.Error("mint microservice token failed", "session_id", sessionID, "service_id", svc.ServiceID, "error", err)
			o.Terminate(context.Background(), sessionID, "microservice token mint failed")
			return nil, apierrors.NewInternal(fmt.Sprintf("failed to mint token for %s: %v", svc.ServiceID, err), "/api/v1/create-session")
		}
		serviceTokens[svc.ServiceID] = tok
	}

	// Step 7: open the monitor connection and spawn the drain task.
	sessionCtx, cancel := context.WithCancel(context.Background())
	monitor, err := o.gateway.OpenMonitor(ctx, roomName, orchestratorIdentityPrefix+sessionID, monitorTokenTTL)
	if err != nil {
		cancel()
		o.logger.Error("open monitor failed", "session_id", sessionID, "error", err)
		o.Terminate(context.Background(), sessionID, "monitor connection failed")
		return nil, apierrors.NewRtcTransport(fmt.Sprintf("failed to open monitor: %v", err), "/api/v1/create-session")
	}

	o.mu.Lock()
	if o.runtimes == nil {
		o.runtimes = make(map[string]*runtime)
	}
	o.runtimes[sessionID] = &runtime{cancel: cancel, monitor: monitor}
	o.mu.Unlock()

	if _, err := o.store.Update(sessionID, func(s *session.Session) error {
		s.RoomConnection = monitor
		return nil
	}); err != nil {
		o.logger.Error("attach monitor to session record failed", "session_id", sessionID, "error", err)
	}

	go o.drainMonitor(sessionCtx, sessionID, monitor)

	// Step 8: transition to WaitingForServices; publish SessionCreated then
	// StatusChanged — in that order, matching the happy-path scenario.
	if _, err := o.store.Update(sessionID, func(s *session.Session) error {
		s.SetStatus(session.StatusWaitingForServices)
		return nil
	}); err != nil {
		return nil, apierrors.NewInternal(err.Error(), "/api/v1/create-session")
	}
	o.bus.Publish(eventbus.SessionCreated(sessionID, roomName, clientToken, o.rtcURL))
	o.bus.Publish(eventbus.StatusChanged(sessionID, string(session.StatusWaitingForServices)))

	// Step 9: detached join-dispatch loop per required service.
	for _, svc := range required {
		svc := svc
		go o.runJoinDispatch(sessionCtx, sessionID, svc, serviceTokens[svc.ServiceID], roomName)
	}

	// If there are no required services, WaitingForServices already
	// satisfies the ready-set invariant; advance immediately (this also
	// covers the original's "no microservices => immediately ready" case
	// without a special branch).
	o.maybeAdvanceToReady(sessionID)

	// Step 10: arm the service-join deadline.
	time.AfterFunc(o.opts.JoinDeadline, func() { o.onJoinDeadline(sessionID) })

	result, err := o.store.Get(sessionID)
	if err != nil {
		return nil, apierrors.NewInternal(err.Error(), "/api/v1/create-session")
	}
	return &CreateSessionResult{
		SessionID:   sessionID,
		RoomName:    roomName,
		ClientToken: clientToken,
		RtcURL:      o.rtcURL,
		Status:      result.Status,
	}, nil
}

func (o *Orchestrator) snapshotRequiredServices(ids []string) ([]registry.Record, error) {
	if len(ids) == 0 {
		return o.registry.ListAvailable(), nil
	}
	found, missing := o.registry.GetByIDs(ids)
	if len(missing) > 0 {
		return nil, apierrors.NewInvalidRequest(fmt.Sprintf("required services not registered: %v", missing), "/api/v1/create-session")
	}
	return found, nil
}

// maybeAdvanceToReady transitions WaitingForServices -> Ready when
// ready_services already covers required_services, publishing StatusChanged
// then SessionReady (spec §4.5(b)(c)) and arming the client-join deadline.
func (o *Orchestrator) maybeAdvanceToReady(sessionID string) {
	sess, err := o.store.Update(sessionID, func(s *session.Session) error {
		if s.Status == session.StatusWaitingForServices && s.AllServicesReady() {
			s.SetStatus(session.StatusReady)
		}
		return nil
	})
	if err != nil {
		return
	}
	if sess.Status != session.StatusReady {
		return
	}
	o.bus.Publish(eventbus.StatusChanged(sessionID, string(session.StatusReady)))
	o.bus.Publish(eventbus.SessionReady(sessionID, true))
	time.AfterFunc(o.opts.ClientDeadline, func() { o.onClientDeadline(sessionID) })
}

// onJoinDeadline implements spec §4.5 step 10/§7: a join rendezvous that
// never completes surfaces to the session's event-stream subscribers as
// JoinTimeout before the session is torn down. A synchronous create-session
// caller never sees this directly, since the HTTP response already returned
// once the session reached WaitingForServices (DESIGN.md); the Error event on
// GET .../events is the reachable surface for it.
func (o *Orchestrator) onJoinDeadline(sessionID string) {
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return
	}
	if sess.Status != session.StatusWaitingForServices {
		return
	}
	apiErr := apierrors.NewJoinTimeout(fmt.Sprintf("join rendezvous did not complete in time, pending services: %v", sess.PendingServices()), "/api/v1/sessions/"+sessionID)
	o.logger.Warn("service-join deadline expired", "session_id", sessionID, "pending", sess.PendingServices(), "kind", apiErr.Kind())
	o.bus.Publish(eventbus.Err(sessionID, apiErr.Detail))
	o.Terminate(context.Background(), sessionID, "service-join timeout")
}

func (o *Orchestrator) onClientDeadline(sessionID string) {
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return
	}
	if sess.Status != session.StatusReady {
		return
	}
	o.logger.Warn("client-join deadline expired", "session_id", sessionID)
	o.Terminate(context.Background(), sessionID, "client-join timeout")
}

// transitionAndPublish applies mutate under the Store's lock, and if it
// actually changed the session's Status, publishes StatusChanged followed by
// extra (if provided). Returns the resulting session and whether a
// transition occurred, so callers can chain deadline-arming logic.
func (o *Orchestrator) transitionAndPublish(sessionID string, newStatus session.Status, extra *eventbus.Event) (*session.Session, bool) {
	var changed bool
	sess, err := o.store.Update(sessionID, func(s *session.Session) error {
		if s.Status == newStatus {
			return nil
		}
		changed = true
		s.SetStatus(newStatus)
		return nil
	})
	if err != nil {
		return nil, false
	}
	if !changed {
		return sess, false
	}
	o.bus.Publish(eventbus.StatusChanged(sessionID, string(newStatus)))
	if extra != nil {
		o.bus.Publish(*extra)
	}
	return sess, true
}

func (o *Orchestrator) runtimeFor(sessionID string) *runtime {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runtimes[sessionID]
}

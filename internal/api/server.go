package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/classroom-core/internal/appliance"
	"github.com/nerrad567/classroom-core/internal/audit"
	"github.com/nerrad567/classroom-core/internal/auth"
	"github.com/nerrad567/classroom-core/internal/automation"
	"github.com/nerrad567/classroom-core/internal/control"
	"github.com/nerrad567/classroom-core/internal/device"
	"github.com/nerrad567/classroom-core/internal/history"
	"github.com/nerrad567/classroom-core/internal/infrastructure/config"
	"github.com/nerrad567/classroom-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SnapshotReader returns the latest device snapshot.
type SnapshotReader interface {
	Read() (device.Snapshot, bool)
}

// Controller publishes control requests.
type Controller interface {
	SetState(ctx context.Context, state appliance.DeviceState, source string) (control.Message, error)
	ApplyIntent(ctx context.Context, intent appliance.ActionIntent, source string) (control.Message, error)
	Execute(ctx context.Context, cmd appliance.Command) (control.Result, error)
}

// RuleService authors automation rules.
type RuleService interface {
	GetRule(ctx context.Context, id string) (*automation.Rule, error)
	ListRules(ctx context.Context) ([]automation.Rule, error)
	CreateRule(ctx context.Context, rule *automation.Rule) error
	UpdateRule(ctx context.Context, rule *automation.Rule) error
	SetEnabled(ctx context.Context, id string, enabled bool) (*automation.Rule, error)
	DeleteRule(ctx context.Context, id string) error
	GetRuleCount() int
}

// SchedulerStatus exposes the scheduler's clock and execution log.
type SchedulerStatus interface {
	LatestObserved() (time.Time, bool)
	LastChecked() (time.Time, bool)
	RecentFirings() []automation.Firing
}

// HistoryService answers historical queries.
type HistoryService interface {
	Query(ctx context.Context, q history.Query) (history.Result, error)
	AvailableDates(ctx context.Context) ([]history.DateAvailability, error)
	EnergyReport(ctx context.Context, start, end string) (history.Report, error)
}

// HealthChecker is an infrastructure component reported by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server. Logger, Store,
// Rules and History are required; a nil Control disables control routes.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	Store     SnapshotReader
	Control   Controller
	Rules     RuleService
	Scheduler SchedulerStatus
	History   HistoryService
	Operators *auth.Directory

	// Panel, if set, serves every path outside /api.
	Panel http.Handler

	// Audit serves /audit and records rule changes. Optional.
	Audit audit.Repository

	// Components are named health checks such as "mqtt" and "database".
	Components map[string]HealthChecker

	// Stats reports database pool statistics for /metrics. Optional.
	Stats DBStatser

	// Hub, if set, is used instead of a server-owned hub so that other
	// components can broadcast on it.
	Hub     *Hub
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	store      SnapshotReader
	control    Controller
	rules      RuleService
	scheduler  SchedulerStatus
	history    HistoryService
	operators  *auth.Directory
	audit      audit.Repository
	panel      http.Handler
	components map[string]HealthChecker
	stats      DBStatser
	version    string
	startTime  time.Time
	tickets    *ticketStore

	server      *http.Server
	listener    net.Listener
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server. The server is not started until Start is
// called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	if deps.Rules == nil {
		return nil, fmt.Errorf("rule service is required")
	}
	if deps.History == nil {
		return nil, fmt.Errorf("history service is required")
	}
	if deps.Security.AuthEnabled && deps.Operators == nil {
		return nil, fmt.Errorf("operator directory is required when auth is enabled")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		store:      deps.Store,
		control:    deps.Control,
		rules:      deps.Rules,
		scheduler:  deps.Scheduler,
		history:    deps.History,
		operators:  deps.Operators,
		audit:      deps.Audit,
		panel:      deps.Panel,
		components: deps.Components,
		stats:      deps.Stats,
		version:    deps.Version,
		startTime:  time.Now(),
		tickets:    newTicketStore(),
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler builds the router. It is exposed for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	s.logger.Info("API server listening", "address", ln.Addr().String(), "auth_enabled", s.secCfg.AuthEnabled)

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// Classroom Core - appliance automation for a single classroom.
//
// classroomd ingests device reports over MQTT, keeps the latest device
// snapshot, fires scheduled rules clocked by the device's own time, and
// serves the control, rules and history API.
//
// Usage:
//
//	classroomd                      run the service
//	classroomd hash-password <pw>   print an Argon2id hash for security.operators
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/classroom-core/migrations"

	"github.com/nerrad567/classroom-core/internal/api"
	"github.com/nerrad567/classroom-core/internal/audit"
	"github.com/nerrad567/classroom-core/internal/auth"
	"github.com/nerrad567/classroom-core/internal/automation"
	"github.com/nerrad567/classroom-core/internal/control"
	"github.com/nerrad567/classroom-core/internal/device"
	"github.com/nerrad567/classroom-core/internal/history"
	"github.com/nerrad567/classroom-core/internal/infrastructure/config"
	"github.com/nerrad567/classroom-core/internal/infrastructure/database"
	"github.com/nerrad567/classroom-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/classroom-core/internal/infrastructure/logging"
	"github.com/nerrad567/classroom-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/classroom-core/internal/panel"
	"github.com/nerrad567/classroom-core/internal/telemetry"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123 -X main.date=2026-03-01"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// brokerStartDelay gives the embedded broker's listener time to accept
// before the client dials it.
const brokerStartDelay = 100 * time.Millisecond

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdout, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// hashPassword prints the Argon2id hash of args[0].
func hashPassword(w io.Writer, args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: classroomd hash-password <password>")
	}
	hash, err := auth.HashPassword(args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}

// run starts every component in dependency order and blocks until ctx is
// cancelled. Components are shut down in reverse order by the deferred
// cleanups.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting classroom core", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"site", cfg.Site.ID,
		"timezone", cfg.Location().String(),
		"level", cfg.Logging.Level,
	)

	// Database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// MQTT
	if cfg.MQTT.Embedded.Enabled {
		broker, brokerErr := mqtt.StartBroker(cfg.MQTT.Embedded.Address, log.Logger)
		if brokerErr != nil {
			return fmt.Errorf("starting embedded MQTT broker: %w", brokerErr)
		}
		defer func() {
			log.Info("stopping embedded MQTT broker")
			if closeErr := broker.Close(); closeErr != nil {
				log.Error("error stopping embedded broker", "error", closeErr)
			}
		}()
		log.Info("embedded MQTT broker listening", "address", broker.Address())
		time.Sleep(brokerStartDelay)
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.With("component", "mqtt"))
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Stores and services
	store := device.NewStore()
	telemetryRepo := device.NewSQLiteTelemetryRepository(db.DB)

	ruleRepo := automation.NewSQLiteRepository(db.DB)
	ruleRepo.SetLogger(log.With("component", "rules"))
	rules := automation.NewRegistry(ruleRepo)
	rules.SetLogger(log.With("component", "rules"))
	if err := rules.RefreshCache(ctx); err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	log.Info("rules loaded", "count", rules.GetRuleCount())

	controlSvc := control.NewService(mqttClient, store, log.With("component", "control"), control.Options{
		Topic: cfg.MQTT.Topics.Control,
		QoS:   byte(cfg.MQTT.QoS), //nolint:gosec // validated 0..2
	})

	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
	controlSvc.SetHub(hub)
	auditTrail := audit.NewSQLiteRepository(db.DB)
	controlSvc.SetAudit(auditTrail)

	// Scheduler
	scheduler := automation.NewScheduler(ruleRepo, store, controlSvc, log.With("component", "scheduler"),
		automation.SchedulerOptions{
			TickInterval:    cfg.TickInterval(),
			LedgerRetention: cfg.LedgerRetention(),
			FiringLogSize:   cfg.Scheduler.FiringLogSize,
		})
	scheduler.OnFiring(func(f automation.Firing) {
		hub.Broadcast(api.ChannelFiring, f)
	})
	if influxClient != nil {
		scheduler.OnFiring(func(f automation.Firing) {
			influxClient.WriteFiring(influxdb.Firing{
				RuleID:       f.RuleID,
				RuleName:     f.RuleName,
				OccurrenceAt: f.OccurrenceAt,
				Dispatched:   f.Dispatched,
			})
		})
	}

	// Ingestion
	ingestDeps := telemetry.Deps{
		Store:  store,
		Clock:  scheduler,
		Repo:   telemetryRepo,
		Hub:    hub,
		Logger: log.With("component", "telemetry"),
	}
	if influxClient != nil {
		ingestDeps.Points = influxClient
	}
	ingestor := telemetry.NewIngestor(ingestDeps, telemetry.Options{
		Topic:            cfg.MQTT.Topics.Telemetry,
		QoS:              byte(cfg.MQTT.QoS), //nolint:gosec // validated 0..2
		PersistOnTheHour: cfg.Telemetry.PersistOnTheHour,
	})

	// API
	var operators *auth.Directory
	if cfg.Security.AuthEnabled {
		operators, err = auth.NewDirectory(cfg.Security.Operators)
		if err != nil {
			return fmt.Errorf("loading operators: %w", err)
		}
		log.Info("operators loaded", "count", operators.Len())
	} else {
		log.Warn("API authentication disabled, every caller is treated as admin")
	}

	components := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}
	if influxClient != nil {
		components["influxdb"] = influxClient
	}

	var dashboard http.Handler
	if cfg.API.Dashboard.Enabled {
		dashboard = panel.Handler(cfg.API.Dashboard.Dir)
	}

	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log.With("component", "api"),
		Store:      store,
		Control:    controlSvc,
		Rules:      rules,
		Scheduler:  scheduler,
		History:    history.NewService(telemetryRepo),
		Operators:  operators,
		Audit:      auditTrail,
		Panel:      dashboard,
		Components: components,
		Stats:      db,
		Hub:        hub,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Start in dependency order. Deferred stops run in reverse.
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)

	scheduler.Start(ctx)
	defer func() {
		log.Info("stopping scheduler")
		scheduler.Stop()
	}()

	if err := ingestor.Start(ctx, mqttClient); err != nil {
		return fmt.Errorf("starting telemetry ingestion: %w", err)
	}

	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, components); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal", "api", apiServer.Addr())

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("CLASSROOM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every infrastructure component once at startup.
func healthCheck(ctx context.Context, components map[string]api.HealthChecker) error {
	for _, name := range []string{"database", "mqtt", "influxdb"} {
		c, ok := components[name]
		if !ok {
			continue
		}
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

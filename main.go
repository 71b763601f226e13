package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	apihttp "medtrack/internal/api/http"
	"medtrack/internal/audit"
	"medtrack/internal/auth"
	"medtrack/internal/config"
	dosingapp "medtrack/internal/dosing/application"
	"medtrack/internal/dosing/application/events"
	dosing "medtrack/internal/dosing/domain"
	dosingmem "medtrack/internal/dosing/infrastructure/memory"
	dosingpg "medtrack/internal/dosing/infrastructure/postgres"
	dosinghttp "medtrack/internal/dosing/interfaces/http"
	"medtrack/internal/eventing"
	"medtrack/internal/eventing/eventbus"
	eventingmem "medtrack/internal/eventing/infrastructure/memory"
	eventingpg "medtrack/internal/eventing/infrastructure/postgres"
	inventory "medtrack/internal/inventory/domain"
	inventorymem "medtrack/internal/inventory/infrastructure/memory"
	inventorypg "medtrack/internal/inventory/infrastructure/postgres"
	inventoryhttp "medtrack/internal/inventory/interfaces/http"
	"medtrack/internal/observability/metrics"
	reminderapp "medtrack/internal/reminder/application"
	reminderinterfaces "medtrack/internal/reminder/interfaces"
	reminderhttp "medtrack/internal/reminder/interfaces/http"
	"medtrack/internal/reminder/notify"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	hh, err := config.LoadHousehold(cfg.HouseholdConfig)
	if err != nil {
		logger.Fatalf("household config error: %v", err)
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
	} else {
		logger.Printf("DATABASE_URL not set, running with in-memory repositories")
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	var (
		inventoryRepo  inventory.Repository
		eventRepo      dosing.EventRepository
		outboxStore    eventing.OutboxWriter
		dispatchOutbox eventing.OutboxStore
		processedStore eventing.ProcessedStore
		dlqStore       eventing.DLQStore
	)
	if db != nil {
		inventoryRepo = inventorypg.NewInventoryRepository(db)
		eventRepo = dosingpg.NewEventRepository(db)
		pgOutbox := eventingpg.NewOutboxStore(db)
		outboxStore = pgOutbox
		dispatchOutbox = pgOutbox
		pgProcessed := eventingpg.NewProcessedStore(db)
		processedStore = pgProcessed
		dlqStore = eventingpg.NewDLQStore(db)
		go purgeDedupKeys(context.Background(), pgProcessed, logger)
	} else {
		inventoryRepo = inventorymem.NewInventoryRepository()
		eventRepo = dosingmem.NewEventRepository()
		memOutbox := eventingmem.NewOutboxStore()
		outboxStore = memOutbox
		dispatchOutbox = memOutbox
		processedStore = eventingmem.NewProcessedStore()
		dlqStore = eventingmem.NewDLQStore()
	}

	ledger, err := inventory.NewLedger(inventoryRepo, hh.Medications, logger)
	if err != nil {
		logger.Fatalf("inventory ledger error: %v", err)
	}
	for id, med := range hh.Medications {
		if err := ledger.Seed(context.Background(), id, med.UnitsPerContainer); err != nil {
			logger.Fatalf("inventory seed error for %s: %v", id, err)
		}
	}

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(events.DoseRecorded{})
	registry.Register(events.InventoryAdjusted{})

	dispatcher := eventing.NewDispatcher(baseBus, dispatchOutbox, registry, dlqStore, eventing.WithDispatcherLogger(logger))
	publisher := eventing.NewPublisher(outboxStore, dispatcher, hh.HouseholdID, baseBus)

	processor, err := dosingapp.NewProcessor(
		hh.Resolver(),
		hh.Schedules,
		hh.Medications,
		eventRepo,
		ledger,
		dosingapp.WithPublisher(publisher),
		dosingapp.WithDedupStore(processedStore),
		dosingapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("dose processor error: %v", err)
	}

	var channel notify.Channel
	channelName := "log"
	if cfg.AlertWebhookURL != "" {
		webhook, err := notify.NewWebhookChannel(cfg.AlertWebhookURL)
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		channel = webhook
		channelName = "webhook"
	} else {
		channel = notify.NewLogChannel(logger)
	}
	var tpl *notify.Template
	if cfg.AlertTemplate != "" {
		tpl, err = notify.NewTemplate(cfg.AlertTemplate)
		if err != nil {
			logger.Fatalf("alert template error: %v", err)
		}
	}
	notifier, err := notify.NewNotifier(channel, tpl,
		notify.WithChannelName(channelName),
		notify.WithHousehold(hh.People, hh.Medications),
	)
	if err != nil {
		logger.Fatalf("alert notifier error: %v", err)
	}

	doseConsumer := reminderinterfaces.NewDoseRecordedConsumer(notifier, logger)
	doseConsumer.Register(baseBus, processedStore)

	scheduler, err := reminderapp.NewScheduler(
		hh.Schedules,
		hh.People,
		hh.Medications,
		eventRepo,
		ledger,
		notifier,
		reminderapp.WithInterval(cfg.ReminderInterval),
		reminderapp.WithMissedCooldown(cfg.MissedCooldown),
		reminderapp.WithStockCooldown(cfg.StockCooldown),
		reminderapp.WithRenewalLead(cfg.RenewalLead),
		reminderapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("reminder scheduler error: %v", err)
	}
	go scheduler.Start(context.Background())

	scanHandler, err := dosinghttp.NewScanIngestHandler(processor, logger)
	if err != nil {
		logger.Fatalf("scan handler error: %v", err)
	}
	doseHandler, err := dosinghttp.NewDoseHandler(processor, eventRepo, auditLogger(auditRepo))
	if err != nil {
		logger.Fatalf("dose handler error: %v", err)
	}
	replayHandler, err := dosinghttp.NewReplayHandler(processor, logger)
	if err != nil {
		logger.Fatalf("replay handler error: %v", err)
	}
	inventoryHandler, err := inventoryhttp.NewHandler(ledger, inventoryRepo, auditLogger(auditRepo))
	if err != nil {
		logger.Fatalf("inventory handler error: %v", err)
	}
	inventoryHandler.WithPublisher(publisher)
	alertsHandler, err := reminderhttp.NewAlertsHandler(scheduler)
	if err != nil {
		logger.Fatalf("alerts handler error: %v", err)
	}
	diagnosticsHandler := apihttp.NewDiagnosticsHandler(
		hh.HouseholdID, hh.People, hh.Medications, hh.Schedules, hh.Bindings, inventoryRepo, eventRepo,
	)
	exportXLSX := apihttp.NewExportDosesXLSXHandler(eventRepo, hh.People, hh.Medications)
	adherencePDF := apihttp.NewAdherencePDFHandler(eventRepo, hh.Schedules, hh.People, hh.Medications)

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy,
		auth.WithExpectedHousehold(hh.HouseholdID),
		auth.WithAuthLogger(logger))
	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.IngestSecret),
		time.Duration(cfg.IngestSkewSeconds)*time.Second,
		auth.WithIngestLogger(logger))

	mux := http.NewServeMux()
	mux.Handle("/ingest/scan", ingestAuth.Wrap(scanHandler))
	mux.Handle("/api/v1/doses", doseHandler)
	mux.Handle("/api/v1/doses/replay", replayHandler)
	mux.Handle("/api/v1/inventory", inventoryHandler)
	mux.Handle("/api/v1/inventory/refill", inventoryHandler)
	mux.Handle("/api/v1/alerts", alertsHandler)
	mux.Handle("/api/v1/diagnostics", diagnosticsHandler)
	mux.Handle("/api/v1/exports/doses.xlsx", exportXLSX)
	mux.Handle("/api/v1/reports/adherence.pdf", adherencePDF)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type appConfig struct {
	DatabaseURL       string
	HTTPAddr          string
	HouseholdConfig   string
	AlertWebhookURL   string
	AlertTemplate     string
	ReminderInterval  time.Duration
	MissedCooldown    time.Duration
	StockCooldown     time.Duration
	RenewalLead       time.Duration
	JWTSecret         string
	IngestSecret      string
	IngestSkewSeconds int
}

func loadConfig() appConfig {
	cfg := appConfig{
		DatabaseURL:       getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		HouseholdConfig:   getenvDefault("HOUSEHOLD_CONFIG", "household.yaml"),
		AlertWebhookURL:   getenvDefault("ALERT_WEBHOOK_URL", ""),
		AlertTemplate:     getenvDefault("ALERT_NOTIFY_TEMPLATE", ""),
		ReminderInterval:  getenvDuration("REMINDER_INTERVAL", 5*time.Minute),
		MissedCooldown:    getenvDuration("MISSED_DOSE_COOLDOWN", time.Hour),
		StockCooldown:     getenvDuration("LOW_STOCK_COOLDOWN", 24*time.Hour),
		RenewalLead:       getenvDuration("RENEWAL_LEAD", 14*24*time.Hour),
		JWTSecret:         getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:      getenvDefault("INGEST_HMAC_SECRET", ""),
		IngestSkewSeconds: getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	if cfg.IngestSecret == "" {
		log.Fatal("INGEST_HMAC_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// purgeDedupKeys trims scan-dedup entries once a day. Keys only matter
// for the redelivery horizon of the readers, so a week of retention is
// generous.
func purgeDedupKeys(ctx context.Context, store *eventingpg.ProcessedStore, logger *log.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)
			if err := store.PurgeBefore(ctx, cutoff, dosingapp.ScanDedupConsumer); err != nil {
				logger.Printf("dedup purge error: %v", err)
			}
		}
	}
}

// auditLogger returns nil for a nil repository so handlers can skip logging.
func auditLogger(repo *audit.Repository) audit.Logger {
	if repo == nil {
		return nil
	}
	return repo
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

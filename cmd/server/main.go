package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yourorg/payment-switch/internal/config"
	"github.com/yourorg/payment-switch/internal/connector"
	"github.com/yourorg/payment-switch/internal/connector/formpay"
	"github.com/yourorg/payment-switch/internal/connector/hmacpay"
	"github.com/yourorg/payment-switch/internal/dispatch"
	"github.com/yourorg/payment-switch/internal/domain"
	"github.com/yourorg/payment-switch/internal/events"
	"github.com/yourorg/payment-switch/internal/metrics"
	"github.com/yourorg/payment-switch/internal/operation"
	"github.com/yourorg/payment-switch/internal/storage"
	"github.com/yourorg/payment-switch/internal/telemetry"
	"github.com/yourorg/payment-switch/internal/tracker"
	"github.com/yourorg/payment-switch/internal/transport"
	"github.com/yourorg/payment-switch/internal/webhooks"
)

const serviceName = "payment-switch"

// demoMerchantID is the merchant the demo wiring seeds into the in-memory
// store; a real deployment resolves merchants from its own store instead.
const demoMerchantID = "merchant_demo"

// server bundles the request-facing collaborators the handlers need.
type server struct {
	engine *operation.Engine
	hooks  *webhooks.Processor
}

// lazySyncer breaks the construction cycle between the tracker worker
// (which needs a syncer) and the operation engine (which needs the worker
// as its scheduler). The engine is bound right after it is built, before
// the worker starts ticking.
type lazySyncer struct {
	mu     sync.RWMutex
	syncer tracker.Syncer
}

func (l *lazySyncer) bind(s tracker.Syncer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.syncer = s
}

func (l *lazySyncer) Sync(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	l.mu.RLock()
	s := l.syncer
	l.mu.RUnlock()
	if s == nil {
		return nil, errors.New("syncer not bound yet")
	}
	return s.Sync(ctx, intentID)
}

// rawPayload reads the request body, defaulting an empty body to an empty
// JSON object so payload validation sees a document rather than nothing.
func rawPayload(c *gin.Context) []byte {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		return []byte("{}")
	}
	return body
}

func writeError(c *gin.Context, err error) {
	var validationErr *operation.ValidationError
	var stateErr *operation.StateError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error(), "problems": validationErr.Problems})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error()})
	case errors.Is(err, webhooks.ErrVerificationFailed):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, webhooks.ErrUnknownReference), errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Printf("server: request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *server) createPayment(c *gin.Context) {
	intent, err := s.engine.Create(c.Request.Context(), rawPayload(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, intent)
}

func (s *server) confirmPayment(c *gin.Context) {
	intent, err := s.engine.Confirm(c.Request.Context(), c.Param("id"), rawPayload(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (s *server) capturePayment(c *gin.Context) {
	intent, err := s.engine.Capture(c.Request.Context(), c.Param("id"), rawPayload(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (s *server) cancelPayment(c *gin.Context) {
	intent, err := s.engine.Cancel(c.Request.Context(), c.Param("id"), rawPayload(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (s *server) syncPayment(c *gin.Context) {
	intent, err := s.engine.Sync(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (s *server) createRefund(c *gin.Context) {
	refund, err := s.engine.Refund(c.Request.Context(), c.Param("id"), rawPayload(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, refund)
}

func (s *server) syncRefund(c *gin.Context) {
	refund, err := s.engine.SyncRefund(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, refund)
}

func (s *server) createMandate(c *gin.Context) {
	mandate, err := s.engine.CreateMandate(c.Request.Context(), rawPayload(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mandate)
}

func (s *server) handleWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read webhook body"})
		return
	}
	result, err := s.hooks.Process(c.Request.Context(), c.Param("merchant_id"), c.Param("connector"), &connector.IncomingWebhook{
		Headers: c.Request.Header,
		Body:    body,
		Query:   c.Request.URL.Query(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func setupRouter(s *server, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))

	router.POST("/payments", s.createPayment)
	router.POST("/payments/:id/confirm", s.confirmPayment)
	router.POST("/payments/:id/capture", s.capturePayment)
	router.POST("/payments/:id/cancel", s.cancelPayment)
	router.GET("/payments/:id/sync", s.syncPayment)
	router.POST("/payments/:id/refunds", s.createRefund)
	router.GET("/refunds/:id/sync", s.syncRefund)
	router.POST("/mandates", s.createMandate)
	router.POST("/webhooks/:merchant_id/:connector", s.handleWebhook)

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

// seedDemoAccounts populates the in-memory store with one merchant and a
// connector account per configured connector, so the demo wiring can take
// traffic without an external database.
func seedDemoAccounts(store *storage.MemoryStore, cfg *config.Settings) {
	store.AddMerchant(storage.MerchantAccount{
		ID:        demoMerchantID,
		Name:      "Demo Merchant",
		ReturnURL: "https://merchant.example.com/return",
	})
	for name, setting := range cfg.Connectors {
		var auth connector.Auth
		switch name {
		case hmacpay.Name:
			auth = connector.Auth{
				Kind:         connector.AuthSignatureKey,
				APIKey:       "hp_demo_key",
				SecondaryKey: "hp_demo_merchant",
				Secret:       "hp_demo_signing_secret",
			}
		case formpay.Name:
			auth = connector.Auth{
				Kind:         connector.AuthBodyKey,
				APIKey:       "fp_demo_key",
				SecondaryKey: "fp_demo_secret",
			}
		default:
			log.Printf("server: no demo credentials for connector %q, skipping seed", name)
			continue
		}
		store.AddConnectorAccount(storage.MerchantConnectorAccount{
			ID:         "mca_" + name,
			MerchantID: demoMerchantID,
			Connector:  name,
			Auth:       auth,
			Config: connector.Config{
				BaseURL: setting.BaseURL,
				Sandbox: setting.Sandbox,
			},
			TestMode:      setting.Sandbox,
			WebhookSecret: []byte("whsec_demo"),
		})
	}
}

// build wires the full stack off the loaded settings. It returns the
// request server, the tracker worker and a cleanup function.
func build(cfg *config.Settings) (*server, *tracker.Worker, func(), error) {
	m := metrics.New(prometheus.DefaultRegisterer)

	registry, err := connector.NewRegistry(hmacpay.New(), formpay.New())
	if err != nil {
		return nil, nil, nil, err
	}
	runner := connector.NewRunner(registry, transport.New(nil, m))

	guards := make([]dispatch.GuardRule, 0, len(cfg.Rollout.Guards))
	for _, g := range cfg.Rollout.Guards {
		guards = append(guards, dispatch.GuardRule{Name: g.Name, Expression: g.Expression})
	}
	decider, err := dispatch.NewDecider(dispatch.MapRollouts(cfg.Rollout.Fractions), nil, guards)
	if err != nil {
		return nil, nil, nil, err
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var unified dispatch.UnifiedClient
	if cfg.Unified.Target != "" {
		client := dispatch.NewGRPCUnifiedClient(cfg.Unified.Target, cfg.Unified.ConnectTimeout)
		cleanups = append(cleanups, func() {
			if err := client.Close(); err != nil {
				log.Printf("server: closing unified client: %v", err)
			}
		})
		unified = client
	}
	dispatcher := dispatch.NewDispatcher(decider, runner, unified, m)

	memStore := storage.NewMemoryStore()
	seedDemoAccounts(memStore, cfg)
	store := memStore.Repositories()

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.Events.Brokers) > 0 {
		kafkaPub := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		cleanups = append(cleanups, func() {
			if err := kafkaPub.Close(); err != nil {
				log.Printf("server: closing event publisher: %v", err)
			}
		})
		publisher = kafkaPub
	}

	var trackerRepo tracker.Repository = tracker.NewMemoryRepository()
	if cfg.Tracker.PostgresDSN != "" {
		pg, err := tracker.Open(cfg.Tracker.PostgresDSN)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		cleanups = append(cleanups, func() {
			if err := pg.Close(); err != nil {
				log.Printf("server: closing tracker store: %v", err)
			}
		})
		trackerRepo = pg
	}

	syncer := &lazySyncer{}
	worker := tracker.NewWorker(trackerRepo, syncer, cfg.Tracker.ClaimInterval)

	engine, err := operation.NewEngine(store, registry, dispatcher, publisher, worker, m)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	syncer.bind(engine)

	return &server{
		engine: engine,
		hooks:  webhooks.NewProcessor(registry, store, m),
	}, worker, cleanup, nil
}

func main() {
	configDir := os.Getenv("SWITCH_CONFIG_DIR")
	if configDir == "" {
		configDir = "."
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	shutdownTelemetry, err := telemetry.Init(serviceName)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer shutdownTelemetry()

	srv, worker, cleanup, err := build(cfg)
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go worker.Run(ctx)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: setupRouter(srv, prometheus.DefaultGatherer),
	}
	go func() {
		log.Printf("Starting server on %s...", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("server: shutdown: %v", err)
	}
}

package main

import (
	"context"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"antrian-klinik/internal/audit"
	"antrian-klinik/internal/config"
	"antrian-klinik/internal/http/handler"
	"antrian-klinik/internal/http/middleware"
	"antrian-klinik/internal/metrics"
	"antrian-klinik/internal/models"
	"antrian-klinik/internal/queue"
	"antrian-klinik/internal/realtime"
	"antrian-klinik/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	config.LoadEnv()
	cfg := config.Load()

	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat, "antrian-klinik")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	hub := realtime.NewHub(logger, m)

	opts := queue.Options{
		Publisher:     hub,
		Metrics:       m,
		Location:      cfg.Location(),
		IntakeDefault: cfg.IntakeDefault,
		Retention:     cfg.JanitorRetention,
		Logger:        logger,
	}
	if cfg.QueueOpen != "" && cfg.QueueClose != "" {
		opts.Hours = &queue.OpeningHours{Open: cfg.QueueOpen, Close: cfg.QueueClose}
	}

	/*
	|--------------------------------------------------------------------------
	| Storage & Collaborators
	|--------------------------------------------------------------------------
	*/
	if cfg.PersistSnapshots {
		rdb := config.InitRedis(ctx, logger)
		defer rdb.Close()
		opts.Persister = storage.NewSnapshotStore(storage.NewRedisKVStore(rdb), cfg.SnapshotTTL)
	}

	var sinks audit.Multi
	if cfg.AuditMySQL {
		db := config.InitDB(logger)
		defer db.Close()
		mysqlSink := audit.NewMySQLSink(db, logger)
		if err := mysqlSink.EnsureTable(ctx); err != nil {
			logger.Fatal("gagal menyiapkan tabel queue_transactions", zap.Error(err))
		}
		sinks = append(sinks, mysqlSink)
	}
	if nc := config.InitNATS(cfg.NatsURL, logger); nc != nil {
		defer nc.Drain()
		natsSink := audit.NewNATSSink(nc, logger)
		sinks = append(sinks, natsSink)
		opts.Tickets = natsSink
	}
	if len(sinks) > 0 {
		dispatcher := audit.NewAsync(sinks, 1024, logger)
		// ditutup setelah server berhenti supaya event terakhir tetap tercatat
		defer dispatcher.Close()
		opts.Audit = dispatcher
	}

	engine := queue.NewEngine(opts)

	// janitor harus selesai sebelum dispatcher audit ditutup
	var janitor sync.WaitGroup
	janitor.Add(1)
	go func() {
		defer janitor.Done()
		engine.RunJanitor(ctx, cfg.JanitorInterval)
	}()
	defer janitor.Wait()

	/*
	|--------------------------------------------------------------------------
	| HTTP
	|--------------------------------------------------------------------------
	*/
	app := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		StrictRouting: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Antrian API jalan",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	h := handler.NewQueueHandler(engine, hub, logger, cfg.SubscriberBuffer)

	// Base API (semua wajib login)
	api := app.Group("/api", middleware.JWTAuth())
	h.Register(api)
	api.Get("/stats", middleware.RoleAuth(models.RoleDesk, models.RoleSpecialist), h.Stats)

	app.Get("/ws/queue", middleware.JWTAuth(), handler.RequireUpgrade, h.QueueWebSocket())

	// Layar ruang tunggu
	display := app.Group("/display", middleware.DisplayAuth(cfg.DisplayUser, cfg.DisplayPassHash))
	h.RegisterDisplay(display)
	display.Get("/ws", handler.RequireUpgrade, h.QueueWebSocket())

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	addr := cfg.Host + ":" + cfg.Port
	logger.Info("Server jalan di", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		logger.Error("server berhenti", zap.Error(err))
	}
	// request yang masih jalan boleh selesai dulu
	stop()
	<-shutdownDone
}

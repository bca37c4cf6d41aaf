package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coffee-shop-bot/internal/config"
	"coffee-shop-bot/internal/logger"
	"coffee-shop-bot/internal/menu"
	"coffee-shop-bot/internal/messaging"
	"coffee-shop-bot/internal/services/checkout"
	"coffee-shop-bot/internal/services/conversation"
	"coffee-shop-bot/internal/services/notifier"
	"coffee-shop-bot/internal/services/staffapi"
	"coffee-shop-bot/internal/store"
	"coffee-shop-bot/internal/store/filestore"
	"coffee-shop-bot/internal/store/postgres"
)

func main() {
	var (
		mode       = flag.String("mode", "", "Service mode (bot, staff-api, staff-notifier)")
		port       = flag.Int("port", 3000, "HTTP port")
		configPath = flag.String("config", "config.yaml", "Path to config file")
		prefetch   = flag.Int("prefetch", 1, "RabbitMQ prefetch count")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(*mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	requestID := logger.GenerateRequestID()
	log.Info("service_started", requestID, fmt.Sprintf("Starting %s", *mode),
		logger.String("mode", *mode),
		logger.Int("port", *port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("graceful_shutdown", requestID, "Received shutdown signal")
		cancel()
	}()

	switch *mode {
	case "bot":
		err = runBot(ctx, cfg, log, *port)
	case "staff-api":
		err = runStaffAPI(ctx, cfg, log, *port)
	case "staff-notifier":
		err = runStaffNotifier(ctx, cfg, log, *prefetch)
	default:
		log.Error("validation_failed", requestID, fmt.Sprintf("Unknown mode: %s", *mode), nil)
		os.Exit(1)
	}

	if err != nil {
		log.Error("service_failed", requestID, fmt.Sprintf("%s failed", *mode), err)
		os.Exit(1)
	}

	log.Info("service_stopped", requestID, "Service stopped gracefully")
}

// buildStore selects the order store backend from configuration.
func buildStore(ctx context.Context, cfg *config.Config, log logger.Logger) (store.Store, error) {
	switch cfg.Orders.Storage {
	case "postgres":
		return postgres.New(ctx, cfg, log)
	default:
		return filestore.New(cfg.Orders.FilePath, cfg.Orders.Prefix, cfg.Orders.CounterStart, log)
	}
}

// runBot runs the conversation core behind the HTTP event bridge.
func runBot(ctx context.Context, cfg *config.Config, log logger.Logger, port int) error {
	requestID := logger.GenerateRequestID()

	catalog, err := menu.Load(cfg.Menu.Path)
	if err != nil {
		return fmt.Errorf("failed to load menu: %w", err)
	}

	orderStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize order store: %w", err)
	}
	defer orderStore.Close()

	log.Info("store_ready", requestID, "Order store initialized",
		logger.String("backend", cfg.Orders.Storage),
		logger.String("next_order_id", orderStore.NextOrderID()))

	templates, err := checkout.ParseTemplates(cfg.Bot.OrderConfirmedTemplate, cfg.Bot.StaffOrderTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse message templates: %w", err)
	}

	var staffNotifier checkout.Notifier
	if cfg.RabbitMQ.Host != "" {
		conn, err := messaging.New(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize messaging: %w", err)
		}
		defer conn.Close()
		log.Info("rabbitmq_connected", requestID, "Connected to RabbitMQ")
		staffNotifier = notifier.NewAMQPNotifier(messaging.NewPublisher(conn, log), cfg.Bot.StaffChatID, log)
	} else {
		log.Warn("rabbitmq_disabled", requestID, "No RabbitMQ host configured, staff notifications go to the log")
		staffNotifier = notifier.NewLogNotifier(log)
	}

	checkoutService := checkout.NewService(orderStore, staffNotifier, templates, log)

	sessions := conversation.NewManager(time.Duration(cfg.Session.TTLMinutes)*time.Minute, log)
	sessions.StartSweeper(ctx)

	machine := conversation.NewMachine(catalog, orderStore, checkoutService, sessions,
		cfg.Bot.WelcomeMessage, cfg.Bot.ContactRequestMessage, cfg.PickupTimes, log)
	handler := conversation.NewHandler(machine, log)

	return serveHTTP(ctx, log, port, "Bot event bridge", handler.SetupRoutes())
}

// runStaffAPI runs the staff-side order API.
func runStaffAPI(ctx context.Context, cfg *config.Config, log logger.Logger, port int) error {
	orderStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize order store: %w", err)
	}
	defer orderStore.Close()

	handler := staffapi.NewHandler(orderStore, log)
	return serveHTTP(ctx, log, port, "Staff API", handler.Router())
}

// runStaffNotifier runs the console subscriber for staff notifications.
func runStaffNotifier(ctx context.Context, cfg *config.Config, log logger.Logger, prefetch int) error {
	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	consumer := messaging.NewConsumer(conn, log, messaging.StaffQueue, "staff-notifier", prefetch)
	subscriber := notifier.NewSubscriber(consumer, log)
	return subscriber.Start(ctx)
}

func serveHTTP(ctx context.Context, log logger.Logger, port int, name string, handler http.Handler) error {
	requestID := logger.GenerateRequestID()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	go func() {
		log.Info("server_started", requestID, fmt.Sprintf("%s listening on port %d", name, port),
			logger.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server_failed", requestID, "HTTP server failed", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

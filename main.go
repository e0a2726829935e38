package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-api/realtime"
	"storefront-api/routes"
	"storefront-api/store"
	"storefront-api/utils"

	"github.com/gorilla/handlers"
)

func openStore(ctx context.Context, cfg *utils.Config) (store.Store, error) {
	if cfg.MongoURI == "" {
		log.Println("MONGO_URI not set. Using the in-memory store; data is lost on restart.")
		return store.NewMemoryStore(), nil
	}
	client, err := utils.ConnectDB(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	s := store.NewMongoStore(client, cfg.MongoDB)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	log.Printf("Connected to MongoDB database %q", cfg.MongoDB)
	return s, nil
}

func main() {
	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := openStore(startCtx, cfg)
	cancel()
	if err != nil {
		log.Fatal(err)
	}

	transport := utils.NewMailTransport(cfg)
	log.Printf("Email transport: %s", transport.Name())
	emailService := utils.NewEmailService(transport, cfg.Company)
	whatsAppService := utils.NewWhatsAppService(cfg)
	hub := realtime.NewHub(cfg.CORSOrigins)

	var google utils.GoogleVerifier
	if cfg.GoogleClientID != "" {
		google = utils.NewGoogleVerifier(cfg.GoogleClientID)
	}

	router := routes.NewRouter(routes.Deps{
		Config:   cfg,
		Store:    db,
		Tokens:   utils.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiresIn),
		Email:    emailService,
		WhatsApp: whatsAppService,
		Google:   google,
		Payments: utils.NewPaymentGateway(cfg),
		Hub:      hub,
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		handlers.ExposedHeaders([]string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Content-Disposition"}),
		handlers.AllowCredentials(),
	)
	handler := handlers.RecoveryHandler(handlers.PrintRecoveryStack(!cfg.IsProduction()))(
		handlers.CombinedLoggingHandler(os.Stdout, cors(router)),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server is running on port %s (%s)", cfg.Port, cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	hub.Close()
	emailService.Wait()
	whatsAppService.Wait()
	if err := db.Close(ctx); err != nil {
		log.Printf("store close: %v", err)
	}
	log.Println("Server stopped")
}

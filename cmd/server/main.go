package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"household-expenses/internal/backend"
	"household-expenses/internal/config"
	"household-expenses/internal/handlers"
	"household-expenses/internal/logging"
	"household-expenses/internal/services"
	"household-expenses/internal/session"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatal(err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	log := logger.WithField(logging.FieldComponent, logging.ComponentApp)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer store.Close()

	publisher := backend.OpenPublisher(cfg, logger)
	defer publisher.Close()

	sessions := session.NewManager(store)
	if n, err := sessions.Cleanup(ctx); err != nil {
		log.WithError(err).Warn("Failed to clean up expired sessions")
	} else if n > 0 {
		log.Infof("Removed %d expired sessions", n)
	}

	h := handlers.NewHandlers(
		services.NewCredentialService(store),
		services.NewConfigService(store),
		services.NewExpenseService(store, publisher),
		sessions,
		store,
		handlers.CookieOptions{Name: cfg.Session.CookieName, Production: cfg.Production()},
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(h, logger, handlers.CORSOptions{Origin: cfg.CORS.Origin, Credentials: cfg.CORS.Credentials}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := run(ctx, srv, log); err != nil {
		log.WithError(err).Fatal("Server failed")
	}
	log.Info("Server stopped")
}

// run serves until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, srv *http.Server, log *logrus.Entry) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// setupRouter wraps the API routes with request logging and CORS.
func setupRouter(h *handlers.Handlers, logger *logrus.Logger, cors handlers.CORSOptions) http.Handler {
	return logging.Middleware(logger)(handlers.CORS(cors)(h.Routes()))
}

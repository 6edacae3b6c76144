package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rediguard/internal/factory"
	"rediguard/internal/handler"
	"rediguard/internal/util"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	// Setup HTTP router with handlers using Chi
	router := setupRouter(f)

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the event consumer; it drains the login topic until shutdown
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := f.Consumer().Run(consumerCtx); err != nil {
			util.Error("Event consumer stopped with error", util.ErrorField(err))
		}
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.String("address", server.Addr),
	)

	waitForShutdown(f, server, stopConsumer, consumerDone)
}

// setupRouter creates the HTTP router with all handlers using Chi
func setupRouter(f *factory.Factory) http.Handler {
	securityHandler := handler.NewSecurityHandler(f.SecurityService(), f.TaskManager(), util.Get())
	healthCheck := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for name, err := range f.HealthCheck(ctx) {
			if err != nil {
				util.Warn("Backend unhealthy", util.String("backend", name), util.ErrorField(err))
				return err
			}
		}
		return nil
	}
	return handler.NewRouter(securityHandler, healthCheck, util.Get())
}

func waitForShutdown(f *factory.Factory, server *http.Server, stopConsumer context.CancelFunc, consumerDone chan struct{}) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("Received shutdown signal", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
	} else {
		util.Info("Server shutdown completed")
	}

	// Stop the consumer after the HTTP surface is down, then let pending
	// commits finish.
	stopConsumer()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		util.Warn("Consumer did not stop before shutdown deadline")
	}

	f.Close()
}

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/MattCruikshank/goft/internal/auth"
	"github.com/MattCruikshank/goft/internal/db"
	"github.com/MattCruikshank/goft/internal/views"
	"github.com/MattCruikshank/goft/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// serveCmd runs the chat server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	Long: `Runs the HTTP server, the WebSocket hub, and the expired-session sweeper
until SIGINT or SIGTERM, then shuts down gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.NewServerDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	renderer, err := views.New()
	if err != nil {
		return err
	}

	sessions := auth.NewSessionStore(database, cfg.Session.TTL.Duration)
	authenticator := auth.NewAuthenticator(database, sessions, auth.CookieConfig{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.Secure,
	})
	hub := server.NewHub(logger.Named("hub"))
	srv := server.NewServer(hub, database, authenticator, renderer, cfg.Chat, logger.Named("chat"))
	admin := server.NewAdminHandler(database, logger.Named("admin"))

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      server.NewRouter(srv, admin, authenticator, logger.Named("http")),
		ReadTimeout:  cfg.HTTP.ReadTimeout.Duration,
		WriteTimeout: cfg.HTTP.WriteTimeout.Duration,
	}

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	logger.Info("started listening", zap.String("addr", ln.Addr().String()))

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return hub.Run(ctx)
	})
	grp.Go(func() error {
		return sessions.Sweep(ctx, cfg.Session.SweepInterval.Duration, logger.Named("sessions"))
	})
	grp.Go(func() error {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	grp.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Duration)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return grp.Wait()
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tidbyt.dev/trainlocation/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Tracks trains and serves them over HTTP",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

var listen string

func init() {
	serveCmd.Flags().StringVarP(&listen, "listen", "l", "", "Address to listen on (overrides config)")
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager, store, err := NewManager()
	if err != nil {
		return err
	}
	defer store.Close()

	err = manager.Start(ctx)
	if err != nil {
		return err
	}
	defer manager.Stop()

	addr := cfg.HTTP.Listen
	if listen != "" {
		addr = listen
	}

	server := &http.Server{
		Addr: addr,
		Handler: api.NewRouter(manager, api.Options{
			CORSOrigins: cfg.HTTP.CORSOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("serving")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

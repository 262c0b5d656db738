package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/trixmart/go-idupload/uploadform"
	"github.com/trixmart/go-idupload/webform"
)

const shutdownGrace = 10 * time.Second

func (a app) runServer(ctx context.Context, args []string) error {
	fs := a.newFlagSet("serve")
	addr := fs.String("addr", ":3000", "Listen address")
	verbose := fs.Bool("verbose", false, "Enable debug logs")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	a.logger.EnableDebugLog(*verbose)

	orchestrator, err := a.newOrchestrator()
	if err != nil {
		a.logger.Errorf("%s", err)
		return err
	}

	if err := a.serve(ctx, *addr, orchestrator, a.logger); err != nil {
		a.logger.Errorf("%s", err)
		return err
	}
	return nil
}

// serve runs the form server until ctx is cancelled.
func serve(ctx context.Context, addr string, orchestrator *uploadform.Orchestrator, logger log.Logger) error {
	server, err := webform.NewServer(orchestrator, logger, uploadform.WithPhaseObserver(func(phase uploadform.Phase) {
		logger.Debugf("Phase: %s", phase)
	}))
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	logger.Infof("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Donef("Server stopped")
	return nil
}

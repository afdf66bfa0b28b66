package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"golang.org/x/sync/errgroup"

	"github.com/derekprior/courtsched/internal/api"
	"github.com/derekprior/courtsched/internal/config"
	"github.com/derekprior/courtsched/internal/notify"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context, cfg *config.Config) error {
	// API Gateway cannot hold websocket connections, so Lambda runs without
	// live updates.
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		a, err := newApp(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()
		a.logger.Info("starting in lambda mode", "storage", cfg.Storage.Driver)
		lambda.Start(httpadapter.New(a.handler(nil)).ProxyWithContext)
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := cfg.Logger(os.Stderr)
	hub := notify.NewHub(logger, func(origin string) bool {
		return slices.Contains(cfg.Server.CORSOrigins, origin)
	})
	a, err := newApp(ctx, cfg, hub)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           a.handler(hub),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		a.logger.Info("listening", "addr", srv.Addr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *app) handler(hub *notify.Hub) http.Handler {
	return api.New(api.Deps{
		Store:         a.store,
		Tournaments:   a.tournaments,
		Scheduler:     a.scheduler,
		Guard:         a.guard,
		Hub:           hub,
		Uploader:      a.uploader,
		BufferMinutes: a.cfg.Scheduling.BufferMinutes,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		Logger:        a.logger,
	}).Routes()
}

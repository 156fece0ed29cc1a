package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/parley/internal/config"
	"github.com/samcharles93/parley/internal/logger"
	"github.com/samcharles93/parley/internal/metrics"
	"github.com/samcharles93/parley/internal/server"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve chat sessions over HTTP with server-sent events",
		Flags: flagGroups(
			configFlags(),
			modelFlags(),
			tokenizerFlags(),
			generationFlags(),
			historyFlags(),
			loggingFlags(),
			[]cli.Flag{
				&cli.StringFlag{
					Name:        "addr",
					Usage:       "listen address",
					Value:       config.DefaultServerAddress,
					Destination: &addr,
				},
				&cli.DurationFlag{
					Name:        "read-timeout",
					Usage:       "read header timeout",
					Value:       30 * time.Second,
					Destination: &readTimeout,
				},
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, cfg, err := loadSettings(ctx, cmd)
			if err != nil {
				return err
			}
			if cfg.ServerAddress != "" && !cmd.IsSet("addr") {
				addr = cfg.ServerAddress
			}
			log := logger.FromContext(ctx)

			b, err := newBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			b.metrics = metrics.New(reg)

			srv := server.New(server.Config{
				NewSession: b.newSession,
				Store:      b.store,
				Gatherer:   reg,
				Logger:     log,
			})
			defer srv.CloseAll()

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			srv.Register(e)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("starting server", "address", addr, "family", b.family.String())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(s *http.Server) error {
					s.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/pokerplan/pokerd/internal/config"
	"github.com/pokerplan/pokerd/pkg/httpapi"
	"github.com/pokerplan/pokerd/pkg/poker"
	"github.com/pokerplan/pokerd/pkg/server"
)

func serveCmd() *cobra.Command {
	var (
		tcpAddr    string
		httpAddr   string
		configPath string
		s3Bucket   string
		s3Key      string
		queueSize  int
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session server",
		Long: `Start the planning poker session server.

The raw TCP listener and the HTTP surface (WebSocket bridge, status
API, SSE stream, metrics) run side by side until SIGINT/SIGTERM.
The voting configuration is loaded at boot and persisted on every
facilitator update, either to a local JSON file or, when --s3-bucket
is set, to an S3 object.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(logLevel)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), serveOptions{
				tcpAddr:    tcpAddr,
				httpAddr:   httpAddr,
				configPath: configPath,
				s3Bucket:   s3Bucket,
				s3Key:      s3Key,
				queueSize:  queueSize,
			}, logger)
		},
	}

	cmd.Flags().StringVar(&tcpAddr, "tcp-addr", ":7878", "TCP listen address for the session protocol")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP listen address (ws bridge, status API, metrics)")
	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "Path of the voting config document")
	cmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "Persist the voting config to this S3 bucket instead of disk")
	cmd.Flags().StringVar(&s3Key, "s3-key", "pokerd/config.json", "S3 object key for the voting config")
	cmd.Flags().IntVar(&queueSize, "send-queue", 64, "Outbound record queue size per connection")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	return cmd
}

type serveOptions struct {
	tcpAddr    string
	httpAddr   string
	configPath string
	s3Bucket   string
	s3Key      string
	queueSize  int
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func newStore(ctx context.Context, opts serveOptions) (config.Store, error) {
	if opts.s3Bucket == "" {
		return config.NewFileStore(opts.configPath), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return config.NewS3Store(s3.NewFromConfig(awsCfg), opts.s3Bucket, opts.s3Key), nil
}

func runServe(ctx context.Context, opts serveOptions, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, opts)
	if err != nil {
		return err
	}
	votingCfg, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load voting config: %w", err)
	}
	logger.Info("voting config loaded", "cards", votingCfg.Cards)

	engine := server.NewEngine(poker.NewState(votingCfg), logger, server.NewMetrics(prometheus.DefaultRegisterer))
	engine.SetConfigSaver(store.Save)

	srvCfg := server.DefaultServerConfig().
		WithTCPAddress(opts.tcpAddr).
		WithSendQueueSize(opts.queueSize)
	srv := server.NewServer(engine, srvCfg, logger)

	api := httpapi.New(engine, engine, logger)
	engine.SetStatusNotifier(api.Notify)

	httpSrv := &http.Server{
		Addr:    opts.httpAddr,
		Handler: api.Router(srv.WebSocketHandler()),
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listener starting", "address", opts.httpAddr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	go func() {
		if err := srv.Run(ctx); !errors.Is(err, server.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	srv.Close()
	engine.CloseAll()

	return runErr
}

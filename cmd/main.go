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
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"synxronfiles/internal/config"
	"synxronfiles/internal/handler"
	"synxronfiles/internal/repository"
	"synxronfiles/internal/scanner"
	"synxronfiles/internal/service"
	"synxronfiles/internal/storage/s3"
)

const (
	dbConnectAttempts = 5
	dbConnectDelay    = 5 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "synxronfiles",
		Short:         "File storage service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", ".app.env", "path to configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.NewConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return repository.Migrate(cfg.Database.GetURL(), newLogger())
		},
	})

	return root
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func serve(ctx context.Context, configPath string) error {
	logger := newLogger()
	slog.SetDefault(logger)

	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// База данных
	db, err := repository.ConnectWithRetry(ctx, cfg.Database.GetDSN(), dbConnectAttempts, dbConnectDelay, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := repository.Migrate(cfg.Database.GetURL(), logger); err != nil {
		return err
	}

	// Объектное хранилище
	storage, err := s3.NewClient(ctx, &cfg.S3, logger)
	if err != nil {
		return fmt.Errorf("failed to create s3 client: %w", err)
	}

	// Антивирус
	conn, err := grpc.NewClient(cfg.Scanner.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to scanner: %w", err)
	}
	defer conn.Close()

	var sender scanner.Sender
	if cfg.Scanner.AsyncTransport == config.AsyncTransportRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Scanner.RedisAddr,
			Password: cfg.Scanner.RedisPassword,
			DB:       cfg.Scanner.RedisDB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		sender = scanner.NewRedisQueue(rdb, cfg.Scanner.RedisQueue)
	}
	fileScanner := scanner.New(scanner.NewGRPCClient(conn, cfg.Scanner.Timeout), sender)

	// Сервисы
	conf := cfg.Files.ServiceConfig()
	fileRepo := repository.NewFileRepository(db)
	reporter := service.NewLogErrorReporter(logger)

	fileService := service.NewFileService(conf, fileRepo, storage, fileScanner, logger)
	copyService := service.NewCopyService(conf, fileRepo, storage, fileScanner, reporter, logger)
	deleteService := service.NewDeleteService(fileRepo, storage, reporter, logger)

	router := handler.NewRouter(
		handler.NewFileHandler(fileService, copyService, logger),
		handler.NewTrashHandler(fileService, deleteService, logger),
		logger,
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server forced to shutdown", slog.String("error", err.Error()))
	}

	// фоновые переносы областей хранения в корзину
	deleteService.Wait()

	logger.Info("server exited properly")
	return nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/user/llm-gateway-proxy/internal/api"
	"github.com/user/llm-gateway-proxy/internal/backendstats"
	"github.com/user/llm-gateway-proxy/internal/config"
	"github.com/user/llm-gateway-proxy/internal/database"
	"github.com/user/llm-gateway-proxy/internal/recorder"
	"github.com/user/llm-gateway-proxy/internal/registry"
	"github.com/user/llm-gateway-proxy/internal/repository"
	"github.com/user/llm-gateway-proxy/internal/router"
	"github.com/user/llm-gateway-proxy/internal/statestore"
	"github.com/user/llm-gateway-proxy/internal/version"
)

// responseStateCapacity bounds the in-memory LRU tier of statestore; the
// sqlite-backed tier has no cap, so a previous_response_id chain can always
// be walked even once an entry falls out of the LRU.
const responseStateCapacity = 10000

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v":
			fmt.Println(version.Info())
			os.Exit(0)
		case "--init":
			if err := runInit(); err != nil {
				log.Fatalf("init: %v", err)
			}
			os.Exit(0)
		case "--help", "-h":
			printUsage()
			os.Exit(0)
		}
	}
	if err := run(parseConfigFlag(os.Args[1:])); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseConfigFlag finds "--config <path>" (or "--config=<path>") among the
// process args. Returns "" if absent, which makes config.Load fall back to
// defaults plus environment overrides.
func parseConfigFlag(args []string) string {
	for i, a := range args {
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if len(a) > len("--config=") && a[:len("--config=")] == "--config=" {
			return a[len("--config="):]
		}
	}
	return ""
}

func printUsage() {
	fmt.Printf("LLM Proxy Go - %s\n\n", version.Short())
	fmt.Println("Usage: llm-proxy [OPTIONS]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>  Load model_list/router/proxy settings from a YAML file")
	fmt.Println("  --init           Generate config.example.yaml")
	fmt.Println("  --version, -v    Show version information")
	fmt.Println("  --help, -h       Show this help message")
	fmt.Println()
	fmt.Println("Without options, starts the LLM proxy server using defaults plus")
	fmt.Println("LLM_PROXY_* environment overrides (see .env).")
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logDir := getLogDir()
	logger, err := newLogger(cfg.LogLevel, logDir, cfg.LogRotation)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting llm-proxy",
		zap.String("version", version.Short()),
		zap.String("host", cfg.ProxySettings.Server.Host),
		zap.Int("port", cfg.ProxySettings.Server.Port),
		zap.Int("models", len(cfg.ModelList)),
	)

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	backendRepo := repository.NewBackendRepository(db)
	logRepo := repository.NewRequestLogRepository(db)
	stateRepo := repository.NewResponseStateRepository(db)

	reg := registry.New(backendRepo)
	reg.LoadDefaults(cfg.Backends(), cfg.FallbackMap())

	ctx := context.Background()
	added, err := backendRepo.List(ctx)
	if err != nil {
		logger.Warn("failed to load runtime-registered backends", zap.Error(err))
	} else {
		reg.LoadAdded(added)
	}

	logStore := recorder.NewBatchingStore(logRepo, logger)
	stats := backendstats.New()
	states := statestore.New(responseStateCapacity, stateRepo, logger)
	rtr := router.New(reg, cfg.RouterSettings.NumRetries, 0, logger, stats)

	server := api.NewServer(api.ServerDeps{
		Router:          rtr,
		Registry:        reg,
		States:          states,
		Stats:           stats,
		LogDir:          filepath.Join(logDir, "requests"),
		LogStore:        logStore,
		EnableResponses: cfg.GeneralSettings.EnableResponsesEndpoint,
		Logger:          logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.ProxySettings.Server.Host, cfg.ProxySettings.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // streaming responses need a long write timeout
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.String("addr", addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	recorder.Await()
	states.Await()
	logStore.Stop()

	logger.Info("server stopped")
	return nil
}

func newLogger(level string, logDir string, rotation config.LogRotationConfig) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug", "DEBUG":
		zapLevel = zap.DebugLevel
	case "warn", "WARN":
		zapLevel = zap.WarnLevel
	case "error", "ERROR":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", logDir, err)
	}

	lj := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "llm-proxy.log"),
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
	}

	// File core: JSON encoder for structured log parsing
	fileEncoderCfg := zap.NewProductionEncoderConfig()
	fileEncoderCfg.TimeKey = "ts"
	fileEncoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(fileEncoderCfg),
		zapcore.AddSync(lj),
		zapLevel,
	)

	// Console core: human-readable output to stdout/stderr
	consoleEncoderCfg := zap.NewDevelopmentEncoderConfig()
	consoleEncoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	consoleEncoder := zapcore.NewConsoleEncoder(consoleEncoderCfg)

	// stdout for DEBUG/INFO, stderr for WARN/ERROR+
	stdoutCore := zapcore.NewCore(
		consoleEncoder,
		zapcore.Lock(os.Stdout),
		zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapLevel && l < zapcore.WarnLevel
		}),
	)
	stderrCore := zapcore.NewCore(
		consoleEncoder,
		zapcore.Lock(os.Stderr),
		zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapLevel && l >= zapcore.WarnLevel
		}),
	)

	core := zapcore.NewTee(fileCore, stdoutCore, stderrCore)

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	), nil
}

func getLogDir() string {
	if dir := os.Getenv("LLM_PROXY_LOGS_DIR"); dir != "" {
		return dir
	}
	return "logs"
}

// Entry point for the competitor-intel HTTP service: YAML config with env
// overrides, JSON logging, SQLite via dbopen, chi router, graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/Adversit/competitor-intel/dbopen"
	"github.com/Adversit/competitor-intel/monitor"
)

// fileConfig is the on-disk YAML shape. Secrets and paths can be overridden
// by environment variables so the file stays committable.
type fileConfig struct {
	Port    string         `yaml:"port"`
	DBPath  string         `yaml:"db_path"`
	Monitor monitor.Config `yaml:"monitor"`
}

func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{
		Port:   "8086",
		DBPath: "db/monitor.db",
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Env overrides.
	cfg.Port = env("PORT", cfg.Port)
	cfg.DBPath = env("DB_PATH", cfg.DBPath)
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Monitor.Insight.APIKey = v
	}
	if v := os.Getenv("HTML_DIR"); v != "" {
		cfg.Monitor.HTMLDir = v
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		cfg.Monitor.Timezone = v
	}
	return cfg, nil
}

func main() {
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(env("CONFIG_FILE", ""))
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("database open failed", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	svc, err := monitor.New(db, &cfg.Monitor, logger)
	if err != nil {
		slog.Error("service init failed", "error", err)
		os.Exit(1)
	}
	if err := svc.Start(ctx); err != nil {
		slog.Error("service start failed", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/api", svc.Routes())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/rollcall/internal/auth"
	"github.com/pavelanni/rollcall/internal/cache"
	"github.com/pavelanni/rollcall/internal/handler"
	appI18n "github.com/pavelanni/rollcall/internal/i18n"
	"github.com/pavelanni/rollcall/internal/model"
	"github.com/pavelanni/rollcall/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rollcall",
		Short: "Classroom participation tracker",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd(), askCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `rollcall --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addDBFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db-driver", string(store.DriverSQLite), "Database driver (sqlite, postgres)")
	f.String("db", "rollcall.db", "SQLite path or postgres connection string")
}

func addCacheFlags(cmd *cobra.Command, defaultKind cache.Kind) {
	f := cmd.Flags()
	f.String("cache", string(defaultKind), "Class state cache (memory, redis, none)")
	f.String("redis-addr", "localhost:6379", "Redis address for --cache=redis")
	f.Int("redis-db", 0, "Redis database number")
	f.String("redis-password", "", "Redis password")
	f.Duration("cache-ttl", 10*time.Minute, "Lifetime of cached class state (0 = until invalidated)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("jwt-secret", "", "HMAC secret for bearer tokens (or set ROLLCALL_JWT_SECRET)")
	f.Duration("token-ttl", auth.DefaultTokenTTL, "Lifetime of issued bearer tokens")
	f.StringSlice("cors-origins", []string{"http://localhost:3000"}, "Origins allowed to call the API")
	f.StringP("lang", "l", appI18n.DefaultLang, "Language of API messages (ar, en)")
	addDBFlags(cmd)
	addCacheFlags(cmd, cache.KindMemory)
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("ROLLCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("rollcall")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/rollcall")
	v.AddConfigPath("/etc/rollcall")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(v *viper.Viper) (*store.Store, error) {
	driver := store.Driver(strings.ToLower(v.GetString("db-driver")))
	db, err := store.Open(driver, v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func openCache(ctx context.Context, v *viper.Viper) (cache.Cache, error) {
	return cache.New(ctx, cache.Options{
		Kind:      cache.Kind(strings.ToLower(v.GetString("cache"))),
		TTL:       v.GetDuration("cache-ttl"),
		RedisAddr: v.GetString("redis-addr"),
		RedisDB:   v.GetInt("redis-db"),
		RedisPass: v.GetString("redis-password"),
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secret := v.GetString("jwt-secret")
	if secret == "" {
		return fmt.Errorf("jwt secret is required: set --jwt-secret flag or ROLLCALL_JWT_SECRET env var")
	}
	issuer, err := auth.NewIssuer(secret)
	if err != nil {
		return err
	}

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	teachers, err := db.TeacherCount()
	if err != nil {
		return fmt.Errorf("count teachers: %w", err)
	}
	if teachers == 0 {
		slog.Info("no teachers registered yet; POST /api/register to create one")
	}

	classCache, err := openCache(ctx, v)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cfg := model.ServerConfig{
		Lang:        lang,
		TokenTTL:    v.GetDuration("token-ttl"),
		CORSOrigins: v.GetStringSlice("cors-origins"),
	}
	h, err := handler.New(db, classCache, issuer, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	go cleanupSessions(ctx, db, time.Hour)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("starting server",
		"addr", addr,
		"db_driver", v.GetString("db-driver"),
		"cache", v.GetString("cache"),
		"lang", lang,
		"token_ttl", cfg.TokenTTL,
		"cors_origins", cfg.CORSOrigins,
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// cleanupSessions removes expired auth sessions every interval until ctx ends.
func cleanupSessions(ctx context.Context, db *store.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.CleanupExpiredSessions()
			if err != nil {
				slog.Error("failed to clean up auth sessions", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("removed expired auth sessions", "count", n)
			}
		}
	}
}

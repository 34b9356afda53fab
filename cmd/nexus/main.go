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
	"github.com/jasonlvhit/gocron"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/exam"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/handler"
	appI18n "github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/i18n"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/llm"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/llm/prompts"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/store"
)

//go:generate templ generate

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nexus",
		Short: "Timed exam engine for the NEXUS university platform",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `nexus --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "nexus.db", "SQLite database path")
	f.StringP("lang", "l", "fr", "Default language for messages (en, fr)")
	f.Duration("submit-grace", exam.DefaultSubmitGrace, "Tolerance after the deadline before a submission is flagged late")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set NEXUS_ADMIN_PASSWORD)")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty disables grade suggestions)")
	f.String("llm-key", "", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.Duration("session-cleanup", time.Hour, "Interval between expired session sweeps")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("nexus")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/nexus")
	v.AddConfigPath("/etc/nexus")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	opts := []exam.Option{exam.WithSubmitGrace(v.GetDuration("submit-grace"))}
	if url := v.GetString("llm-url"); url != "" {
		promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
		if !prompts.IsValidVariant(promptVariant) {
			slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
			promptVariant = string(prompts.PromptStandard)
		}
		opts = append(opts, exam.WithAssistant(llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), promptVariant)))
		slog.Info("essay grade suggestions enabled", "url", url, "model", v.GetString("llm-model"), "variant", promptVariant)
	}
	svc := exam.NewService(db, db, opts...)

	stopCleanup := startSessionCleanup(db, v.GetDuration("session-cleanup"))
	defer close(stopCleanup)

	h := handler.New(db, svc, v.GetBool("secure-cookies"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware)
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"lang", lang,
		"submit_grace", v.GetDuration("submit-grace"),
	)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// startSessionCleanup schedules the periodic removal of expired auth
// sessions. Closing the returned channel stops the scheduler.
func startSessionCleanup(db *store.Store, every time.Duration) chan bool {
	minutes := uint64(every.Minutes())
	if minutes == 0 {
		minutes = 1
	}
	s := gocron.NewScheduler()
	if err := s.Every(minutes).Minutes().Do(cleanupSessions, db); err != nil {
		slog.Error("failed to schedule session cleanup", "error", err)
	}
	return s.Start()
}

func cleanupSessions(db *store.Store) {
	n, err := db.CleanupExpiredSessions()
	if err != nil {
		slog.Error("session cleanup failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("removed expired sessions", "count", n)
	}
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or NEXUS_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}

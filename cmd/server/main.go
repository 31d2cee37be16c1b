package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"injury-report/internal/archive"
	"injury-report/internal/auth"
	"injury-report/internal/config"
	"injury-report/internal/draft"
	"injury-report/internal/events"
	"injury-report/internal/injury"
	"injury-report/internal/logging"
	"injury-report/internal/platform/graph"
	"injury-report/internal/platform/telegram"
	"injury-report/internal/report"
)

var (
	verbose    bool
	configPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "injury-report",
	Short: "Workplace injury report service",
	Long: `Serves the injury report API: drafts are edited section by section,
classified for regulator reporting and saved to the SharePoint list
with the caller's delegated token.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the draft schema",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL must be set")
		}
		direction := "up"
		if len(args) == 1 {
			direction = args[0]
		}
		return runMigrations(cfg.MigrationsPath, cfg.DatabaseURL, direction)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional YAML config file")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Infrastructure
	repo, closeDB, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	graphClient := graph.NewClient(cfg.RecordStore.BaseURL, cfg.RecordStore.Timeout)
	site := graph.Site{
		SiteID:   cfg.RecordStore.SiteID,
		Hostname: cfg.RecordStore.SiteHostname,
		Path:     cfg.RecordStore.SitePath,
		ListName: cfg.RecordStore.ListName,
	}
	sessions := func(ts auth.TokenSource, known graph.ListRef) draft.RecordSession {
		return graphClient.NewSession(ts, site, known)
	}

	// 2. Post-submit steps
	renderer := report.NewRenderer(cfg.Notify.FontPath)
	var notifiers []draft.Notifier

	if cfg.NotificationsEnabled() {
		tgClient := telegram.NewClient(cfg.Notify.TelegramToken)
		notifiers = append(notifiers, report.NewService(tgClient, cfg.Notify.SafetyChatID, renderer, logger.Named("report")))
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN or SAFETY_CHAT_ID not set, safety alerts disabled")
	}

	if cfg.Archive.Bucket != "" {
		s3Client, err := archive.NewS3Client(ctx)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, archive.New(s3Client, cfg.Archive.Bucket, renderer, logger.Named("archive")))
	}

	if len(cfg.Events.Brokers) > 0 {
		publisher := events.NewPublisher(events.NewKafkaWriter(cfg.Events.Brokers, cfg.Events.Topic), logger.Named("events"))
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("failed to close event writer", zap.Error(err))
			}
		}()
		notifiers = append(notifiers, publisher)
	}

	// 3. Services
	draftSvc := draft.NewService(repo, sessions, injury.NewMapper(loc), renderer, logger.Named("draft"), notifiers...)
	draftHandler := draft.NewHandler(draftSvc, logger.Named("http"))

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)

	// CORS for frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/auth/config", auth.ConfigHandler(auth.ClientConfig{
			ClientID:    cfg.Identity.ClientID,
			Authority:   cfg.Identity.Authority(),
			RedirectURI: cfg.Identity.RedirectURI,
		}))
		draft.RegisterRoutes(r, draftHandler)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("incident_timezone", loc.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()

	// Let in-flight alerts and uploads finish before the writers close.
	draftSvc.Wait()
	return err
}

// openRepository connects to PostgreSQL and applies migrations, or falls
// back to in-memory drafts when no database is configured.
func openRepository(ctx context.Context, cfg *config.Config) (draft.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, drafts are kept in memory and lost on restart")
		return draft.NewMemoryRepository(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	// Simple retry logic for DB connection
	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		logger.Info("waiting for database", zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			db.Close()
			return nil, nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("could not connect to database: %w", err)
	}
	logger.Info("connected to database")

	if err := runMigrations(cfg.MigrationsPath, cfg.DatabaseURL, "up"); err != nil {
		db.Close()
		return nil, nil, err
	}
	return draft.NewRepository(db), func() { db.Close() }, nil
}

func runMigrations(source, databaseURL, direction string) error {
	m, err := migrate.New(source, databaseURL)
	if err != nil {
		return fmt.Errorf("migration init failed: %w", err)
	}
	defer m.Close()

	if direction == "down" {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration %s failed: %w", direction, err)
	}
	logger.Info("migrations applied", zap.String("direction", direction))
	return nil
}

package main

import (
	"context"
	crypto_rand "crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/prescription"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/events"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/websocket"
	"github.com/hms/hms/migrations"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "hms-server",
		Short:        "Hospital management API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Hour,
	})
}

// resolveSigningKey returns the configured token signing key, or a random
// 32-byte key when none is set. The second return value is true when the
// key was generated; tokens signed with it do not survive a restart.
func resolveSigningKey(value string) ([]byte, bool, error) {
	if value != "" {
		return []byte(value), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate signing key: %w", err)
	}
	return key, true, nil
}

// migrationFiles picks the --dir flag, then MIGRATIONS_DIR, then the
// migrations compiled into the binary.
func migrationFiles(flagDir, cfgDir string) fs.FS {
	switch {
	case flagDir != "":
		return os.DirFS(flagDir)
	case cfgDir != "":
		return os.DirFS(cfgDir)
	default:
		return migrations.FS
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigratorFS(pool, migrationFiles(dir, cfg.MigrationsDir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigratorFS(pool, migrationFiles(dir, cfg.MigrationsDir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", "-"
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format(time.RFC3339)
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

// createAdminCmd bootstraps the first account; every other account is
// created through the API by an admin.
func createAdminCmd() *cobra.Command {
	var in staff.CreateUserInput
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sched, err := cfg.Scheduling()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := staff.NewService(staff.NewUserRepo(pool), staff.NewScheduleRepo(pool), nil, sched, nil)
			ctx = auth.WithIdentity(ctx, uuid.Nil.String(), auth.RoleSuperAdmin)
			u, err := svc.CreateUser(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s (%s)\n", u.Role, u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "Login email")
	cmd.Flags().StringVar(&in.Password, "password", "", "Initial password (min 8 characters)")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "System", "First name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "Administrator", "Last name")
	cmd.Flags().StringVar(&in.Role, "role", auth.RoleAdmin, "admin or super_admin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// server holds what runServer has to close on shutdown.
type server struct {
	echo *echo.Echo
	hub  *websocket.Hub
}

// newServer wires repositories, services and routes. Nothing touches the
// database until a request arrives.
func newServer(cfg *config.Config, pool *pgxpool.Pool, tokens *auth.TokenIssuer, publisher events.Publisher, logger zerolog.Logger) (*server, error) {
	sched, err := cfg.Scheduling()
	if err != nil {
		return nil, err
	}

	hub := websocket.NewHub(logger)
	emitter := events.NewEmitter(events.Multi(hub, publisher), logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.BodyLimit("2M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	health := db.HealthHandler(db.PoolCheck(pool), version)
	e.GET("/health", health)

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	if cfg.IsDev() {
		logger.Warn().Str("env", cfg.Env).
			Msg("development auth is enabled: requests without a bearer token act as admin; set ENV=production for real deployments")
		apiV1.Use(auth.DevAuthMiddleware(tokens))
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{Issuer: tokens, Skipper: auth.AuthSkipper}))
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.GET("/health", health)

	loc := sched.Location

	staffSvc := staff.NewService(staff.NewUserRepo(pool), staff.NewScheduleRepo(pool), tokens, sched, emitter)
	patientSvc := patient.NewService(patient.NewRepo(pool), cfg.PatientCodePrefix, loc, emitter, logger)
	schedulingSvc := scheduling.NewService(scheduling.NewRepo(pool), patientSvc, staffSvc, sched, emitter, logger)
	prescriptionSvc := prescription.NewService(prescription.NewRepo(pool), patientSvc, staffSvc, schedulingSvc, loc, emitter)
	billingSvc := billing.NewService(billing.NewRepo(pool), patientSvc, schedulingSvc, cfg.ReceiptPrefix, loc, emitter, logger)

	staff.NewHandler(staffSvc).RegisterRoutes(apiV1)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(apiV1)
	prescription.NewHandler(prescriptionSvc).RegisterRoutes(apiV1)
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(apiV1)

	return &server{echo: e, hub: hub}, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	key, random, err := resolveSigningKey(cfg.AuthSigningKey)
	if err != nil {
		return err
	}
	if random {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set, using a random key; tokens will not survive a restart")
	}
	tokens := auth.NewTokenIssuer(key, cfg.AuthIssuer, cfg.AuthTokenTTL)

	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		writer := events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		kp := events.NewKafkaPublisher(writer)
		defer func() {
			if err := kp.Close(); err != nil {
				logger.Warn().Err(err).Msg("kafka writer close failed")
			}
		}()
		publisher = kp
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing events to kafka")
	}

	srv, err := newServer(cfg, pool, tokens, publisher, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.echo.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Int("websocket_clients", srv.hub.ClientCount()).Msg("server stopped")
	return nil
}

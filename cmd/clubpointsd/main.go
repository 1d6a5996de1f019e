package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/internal/config"
	"github.com/MarkoPoloResearchLab/clubpoints/internal/httpapi"
	"github.com/MarkoPoloResearchLab/clubpoints/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/clubpoints/internal/throttle"
	"github.com/MarkoPoloResearchLab/clubpoints/internal/zaplog"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/leaderboard"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/points"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/report"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/workflow"
	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL           = "database-url"
	flagListenAddr            = "listen-addr"
	flagRedisURL              = "redis-url"
	flagJWTSigningKey         = "jwt-signing-key"
	flagJWTIssuer             = "jwt-issuer"
	flagAllowedOrigins        = "allowed-origins"
	flagRequestTimeout        = "request-timeout"
	flagSubmissionThrottle    = "submission-throttle"
	flagMinEventPhotos        = "min-event-photos"
	flagMembershipPoints      = "membership-points"
	flagEventAttendeePoints   = "event-attendee-points"
	flagSessionAttendeePoints = "session-attendee-points"
	flagReportApprovalPoints  = "report-approval-points"
	flagLogFormat             = "log-format"
	envPrefix                 = "CLUBPOINTS"

	driverPostgres    = "postgres"
	driverSQLite      = "sqlite"
	defaultSQLiteFile = "clubpoints.db"
	sqliteMemoryPath  = ":memory:"
	redisDialTimeout  = 2 * time.Second
	redisPingTimeout  = 3 * time.Second
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "clubpointsd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "clubpointsd",
		Short:         "Club points ledger, approvals and reports over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newServeCommand(), newMigrateCommand())
	return rootCmd
}

func newServeCommand() *cobra.Command {
	cfg := config.Default()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
	registerFlags(cmd, config.Default())
	return cmd
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			v := newViper()
			if err := v.BindPFlag(flagDatabaseURL, cmd.Flags().Lookup(flagDatabaseURL)); err != nil {
				return err
			}
			databaseURL := strings.TrimSpace(v.GetString(flagDatabaseURL))
			db, cleanup, _, err := openDatabase(cmd.Context(), databaseURL)
			if err != nil {
				return fmt.Errorf("database open: %w", err)
			}
			defer func() { _ = cleanup() }()
			if err := gormstore.AutoMigrate(db); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
	cmd.Flags().String(flagDatabaseURL, config.Default().DatabaseURL, "database URL (postgres:// or sqlite://)")
	return cmd
}

func registerFlags(cmd *cobra.Command, defaults config.Config) {
	flags := cmd.Flags()
	flags.String(flagDatabaseURL, defaults.DatabaseURL, "database URL (postgres:// or sqlite://)")
	flags.String(flagListenAddr, defaults.ListenAddr, "HTTP listen address")
	flags.String(flagRedisURL, "", "redis URL for submission throttling (optional)")
	flags.String(flagJWTSigningKey, "", "HS256 signing key for bearer tokens (required)")
	flags.String(flagJWTIssuer, defaults.JWTIssuer, "expected JWT issuer")
	flags.String(flagAllowedOrigins, strings.Join(defaults.AllowedOrigins, ","), "comma-separated list of allowed CORS origins")
	flags.Duration(flagRequestTimeout, defaults.RequestTimeout, "per-request timeout")
	flags.Duration(flagSubmissionThrottle, defaults.SubmissionThrottle, "window during which a repeated submission is rejected")
	flags.Int(flagMinEventPhotos, defaults.MinEventPhotos, "photos required to complete an event")
	flags.Int64(flagMembershipPoints, defaults.MembershipPoints, "points granted to the ambassador per approved membership")
	flags.Int64(flagEventAttendeePoints, defaults.EventAttendeePoints, "points granted to each attendee of a completed event")
	flags.Int64(flagSessionAttendeePoints, defaults.SessionAttendeePoints, "points granted to each present attendee of a confirmed session")
	flags.Int64(flagReportApprovalPoints, defaults.ReportApprovalPoints, "points granted to the author of an approved report")
	flags.String(flagLogFormat, defaults.LogFormat, "log output format: json or console")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig merges flags, CLUBPOINTS_* environment variables and an optional .env file.
func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	_ = godotenv.Load()
	v := newViper()
	for _, flagName := range []string{
		flagDatabaseURL, flagListenAddr, flagRedisURL, flagJWTSigningKey, flagJWTIssuer,
		flagAllowedOrigins, flagRequestTimeout, flagSubmissionThrottle, flagMinEventPhotos,
		flagMembershipPoints, flagEventAttendeePoints, flagSessionAttendeePoints,
		flagReportApprovalPoints, flagLogFormat,
	} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.RedisURL = strings.TrimSpace(v.GetString(flagRedisURL))
	cfg.JWTSigningKey = v.GetString(flagJWTSigningKey)
	cfg.JWTIssuer = strings.TrimSpace(v.GetString(flagJWTIssuer))
	cfg.AllowedOrigins = config.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.RequestTimeout = v.GetDuration(flagRequestTimeout)
	cfg.SubmissionThrottle = v.GetDuration(flagSubmissionThrottle)
	cfg.MinEventPhotos = v.GetInt(flagMinEventPhotos)
	cfg.MembershipPoints = v.GetInt64(flagMembershipPoints)
	cfg.EventAttendeePoints = v.GetInt64(flagEventAttendeePoints)
	cfg.SessionAttendeePoints = v.GetInt64(flagSessionAttendeePoints)
	cfg.ReportApprovalPoints = v.GetInt64(flagReportApprovalPoints)
	cfg.LogFormat = strings.TrimSpace(v.GetString(flagLogFormat))

	return cfg.Validate()
}

func newLogger(format string) (*zap.Logger, error) {
	if format == config.LogFormatConsole {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	store := gormstore.New(gormDB)
	clock := func() time.Time { return time.Now().UTC() }
	auditLogger := zaplog.New(logger)

	pointsService, err := points.NewService(store, clock, points.WithOperationLogger(auditLogger))
	if err != nil {
		return fmt.Errorf("points service init: %w", err)
	}
	engine, err := workflow.NewEngine(store, clock, workflow.WithPolicy(cfg.Policy()), workflow.WithTransitionLogger(auditLogger))
	if err != nil {
		return fmt.Errorf("workflow engine init: %w", err)
	}
	board, err := leaderboard.NewService(store, store)
	if err != nil {
		return fmt.Errorf("leaderboard init: %w", err)
	}
	builder, err := report.NewBuilder(store)
	if err != nil {
		return fmt.Errorf("report builder init: %w", err)
	}
	reports, err := report.NewService(builder, store, clock, report.WithTransitionLogger(auditLogger))
	if err != nil {
		return fmt.Errorf("report service init: %w", err)
	}

	services := httpapi.Services{
		Points:      pointsService,
		Engine:      engine,
		Leaderboard: board,
		Reports:     reports,
		Users:       store,
	}
	guard, closeRedis, err := openThrottle(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeRedis() }()
	if guard.Enabled() {
		services.Throttle = guard
	}

	router, err := httpapi.NewRouter(httpapi.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		SigningKey:     cfg.JWTSigningKey,
		Issuer:         cfg.JWTIssuer,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	}, services)
	if err != nil {
		return fmt.Errorf("router init: %w", err)
	}
	return httpapi.Serve(ctx, cfg.ListenAddr, router, logger)
}

// openThrottle connects to redis when configured; an empty URL disables throttling.
func openThrottle(ctx context.Context, cfg config.Config, logger *zap.Logger) (*throttle.Guard, func() error, error) {
	noop := func() error { return nil }
	if cfg.RedisURL == "" || cfg.SubmissionThrottle <= 0 {
		logger.Info("submission throttling disabled")
		return throttle.New(nil, 0), noop, nil
	}
	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, noop, fmt.Errorf("parse redis url: %w", err)
	}
	options.DialTimeout = redisDialTimeout
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, throttle will fail open", zap.Error(err))
	}
	return throttle.New(client, cfg.SubmissionThrottle), client.Close, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	cfg := &gorm.Config{}
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	if driver == driverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		parsed, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := parsed.Path
		if path == "" {
			path = parsed.Host
		}
		if path == "" || path == "/" {
			path = defaultSQLiteFile
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	// Anything else is a plain sqlite file path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == sqliteMemoryPath {
		return path, nil
	}
	if filepath.IsAbs(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	relative := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(relative), 0o755); err != nil {
		return "", err
	}
	return relative, nil
}

// prepareSchema migrates sqlite databases on startup; postgres goes through the migrate command.
func prepareSchema(db *gorm.DB, driver string) error {
	if driver != driverSQLite {
		return nil
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/signagecloud/access-management/internal"
	"github.com/signagecloud/access-management/internal/audit"
	auditPostgres "github.com/signagecloud/access-management/internal/audit/postgres"
	"github.com/signagecloud/access-management/internal/auth"
	authPostgres "github.com/signagecloud/access-management/internal/auth/postgres"
	"github.com/signagecloud/access-management/internal/core/events"
	"github.com/signagecloud/access-management/internal/delegation"
	delegationPostgres "github.com/signagecloud/access-management/internal/delegation/postgres"
	"github.com/signagecloud/access-management/internal/membership"
	membershipPostgres "github.com/signagecloud/access-management/internal/membership/postgres"
	"github.com/signagecloud/access-management/internal/permission"
	permissionPostgres "github.com/signagecloud/access-management/internal/permission/postgres"
	"github.com/signagecloud/access-management/internal/resolver"
	resolverPostgres "github.com/signagecloud/access-management/internal/resolver/postgres"
	"github.com/signagecloud/access-management/internal/role"
	rolePostgres "github.com/signagecloud/access-management/internal/role/postgres"
	"github.com/signagecloud/access-management/internal/tenant"
	tenantPostgres "github.com/signagecloud/access-management/internal/tenant/postgres"
	"github.com/signagecloud/access-management/internal/transport/rest"
	"github.com/signagecloud/access-management/internal/user"
	"github.com/signagecloud/access-management/pkg/logger"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	GormDB   *gorm.DB
	Router   *chi.Mux
	Resolver *resolver.Resolver
	Handlers rest.Handlers
	Sweeper  *delegation.Service
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.Handlers, deps.Resolver, deps.Logger)

	sweeper := startSweeper(deps.Config.Sweep, deps.Sweeper, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if sweeper != nil {
			<-sweeper.Stop().Done()
		}
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// gorm shares the pgx pool the health check pings
	gormDB, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	bus := events.NewEventBus(lg)

	// the invalidator interfaces stay nil when caching is off; assigning a nil
	// *DecisionCache directly would make the services' nil checks pass
	var (
		cache                 *resolver.DecisionCache
		roleInvalidator       role.CacheInvalidator
		membershipInvalidator membership.CacheInvalidator
		delegationInvalidator delegation.CacheInvalidator
	)
	if config.Resolver.CacheEnabled {
		cache = resolver.NewDecisionCache(config.Resolver.CacheMaxEntries, config.Resolver.CacheTTL)
		roleInvalidator = cache
		membershipInvalidator = cache
		delegationInvalidator = cache
	}

	auditService := audit.NewService(auditPostgres.NewAuditRepository(gormDB), lg)
	auditService.SubscribeAll(bus)

	permissionService := permission.NewService(permissionPostgres.NewPermissionRepository(gormDB), bus, lg)
	if err := permissionService.Reload(); err != nil {
		return nil, fmt.Errorf("failed to load permission registry: %w", err)
	}

	res := resolver.NewResolver(
		resolverPostgres.NewResolverRepository(gormDB),
		permissionService,
		cache,
		auditService,
		lg,
	)

	roleService := role.NewService(rolePostgres.NewRoleRepository(gormDB), permissionService, roleInvalidator, bus, lg)
	membershipService := membership.NewService(membershipPostgres.NewMembershipRepository(gormDB), membershipInvalidator, bus, lg)
	delegationService := delegation.NewService(delegationPostgres.NewDelegationRepository(gormDB), delegationInvalidator, bus, lg)
	tenantService := tenant.NewService(tenantPostgres.NewTenantRepository(gormDB), bus, lg)

	tokenGen := auth.NewJWTTokenGenerator(
		config.Security.AccessTokenSecret,
		config.Security.RefreshTokenSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(authPostgres.NewRepository(gormDB), tokenGen, config.Security.BCryptCost)
	authHandler := auth.NewHandler(authService)

	handlers := rest.Handlers{
		Auth:       authHandler,
		User:       user.NewHandler(authService, membershipService),
		Tenant:     tenant.NewHandler(tenantService),
		Role:       role.NewHandler(roleService),
		Permission: permission.NewHandler(permissionService),
		Membership: membership.NewHandler(membershipService),
		Delegation: delegation.NewHandler(delegationService),
		Access:     resolver.NewHandler(res),
		Audit:      audit.NewHandler(auditService),
	}

	return &Dependencies{
		Config:   config,
		DB:       db,
		GormDB:   gormDB,
		Router:   chi.NewRouter(),
		Resolver: res,
		Handlers: handlers,
		Sweeper:  delegationService,
		Logger:   lg,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

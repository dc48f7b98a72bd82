package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/wolfeidau/orgbot/internal/config"
	"github.com/wolfeidau/orgbot/internal/directory"
	httpserver "github.com/wolfeidau/orgbot/internal/http"
	"github.com/wolfeidau/orgbot/internal/logger"
	"github.com/wolfeidau/orgbot/internal/messages"
	"github.com/wolfeidau/orgbot/internal/slackbot"
	"github.com/wolfeidau/orgbot/internal/store"
	memorystore "github.com/wolfeidau/orgbot/internal/store/memory"
	postgresstore "github.com/wolfeidau/orgbot/internal/store/postgres"
	"github.com/wolfeidau/orgbot/internal/telemetry"
	"github.com/wolfeidau/orgbot/internal/workflow"
)

type RunCmd struct {
	Config SettingsFlags `embed:""`

	// Operational configuration
	HealthListen    string        `help:"health endpoint listen address, empty to disable" default:"" env:"ORGBOT_HEALTH_LISTEN"`
	JanitorInterval time.Duration `help:"interval between expired session sweeps" default:"10m" env:"ORGBOT_JANITOR_INTERVAL"`
	DirectoryCache  bool          `help:"cache fresh directory GET responses" default:"false" env:"ORGBOT_DIRECTORY_CACHE"`
	CacheDir        string        `help:"directory for the persistent directory response cache, empty for memory" default:"" env:"ORGBOT_CACHE_DIR"`
	Tracing         bool          `help:"enable tracing" default:"false" env:"ORGBOT_TRACING"`
	TraceRatio      float64       `help:"fraction of traces sampled" default:"1" env:"ORGBOT_TRACE_RATIO"`

	// Store configuration
	StoreType     string             `help:"session store type (memory or postgres)" default:"memory" env:"ORGBOT_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"4"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"1"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"ORGBOT_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (c *RunCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx = log.WithContext(ctx)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting orgbot")

	settings, err := config.Load(c.Config.Settings)
	if err != nil {
		return err
	}

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "orgbot",
			Version:     globals.Version,
			SampleRatio: c.TraceRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	botToken, err := settings.SlackBotToken()
	if err != nil {
		return err
	}
	appToken, err := settings.SlackAppToken()
	if err != nil {
		return err
	}
	snykToken, err := settings.SnykToken()
	if err != nil {
		return err
	}

	sessions, checks, closeStore, err := c.openSessionStore(ctx, log)
	if err != nil {
		return err
	}
	defer closeStore()

	dir, err := directory.NewSnykClient(directory.SnykConfig{
		BaseURL:   settings.SnykAPIURL,
		GroupID:   settings.SnykGroupID,
		Token:     snykToken,
		Timeout:   settings.DirectoryTimeout,
		HTTPCache: c.DirectoryCache,
		CacheDir:  c.CacheDir,
	})
	if err != nil {
		return fmt.Errorf("failed to create directory client: %w", err)
	}

	catalog, err := messages.Load(c.Config.Templates)
	if err != nil {
		return fmt.Errorf("failed to load message templates: %w", err)
	}

	policy, err := workflow.NewNamingPolicy(settings.BusinessUnitRegexPattern, settings.TeamNameRegexPattern)
	if err != nil {
		return err
	}

	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))

	orchestrator, err := workflow.New(workflow.Config{
		AllowDuplicateOrgNames:  settings.AllowDuplicateOrgNames,
		SSOProviderName:         settings.SSOProviderName,
		SSOSignInLink:           settings.SSOSignInLink,
		SessionTTL:              settings.SessionTTL,
		AdminAssignmentAttempts: settings.AdminAssignmentAttempts,
	}, workflow.Dependencies{
		Sessions:  sessions,
		Directory: dir,
		Identity:  slackbot.NewIdentityResolver(api),
		Notifier:  slackbot.NewNotifier(api, catalog),
		Policy:    policy,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("command", "/"+settings.CommandCreateOrg).
		Str("snyk_group_id", settings.SnykGroupID).
		Bool("allow_duplicate_org_names", settings.AllowDuplicateOrgNames).
		Stringer("naming_policy", policy).
		Msg("Workflow configured")

	if settings.SessionTTL > 0 && c.JanitorInterval > 0 {
		go orchestrator.RunJanitor(ctx, c.JanitorInterval)
	}

	if c.HealthListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/healthz", httpserver.Health(2*time.Second, checks))
		srv := configureHTTPServer(c.HealthListen, httpserver.AccessLog(log)(mux))

		go func() {
			log.Info().Str("addr", c.HealthListen).Msg("Starting health server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Health server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	handler := slackbot.NewHandler(api, catalog, orchestrator, settings.CommandCreateOrg)
	bot := slackbot.NewBot(api, handler, globals.Debug)

	if err := bot.Run(ctx); err != nil {
		return err
	}

	log.Info().Msg("Shutting down")
	return nil
}

// openSessionStore creates the configured session store with its health checks and a close function.
func (c *RunCmd) openSessionStore(ctx context.Context, log zerolog.Logger) (store.SessionStore, map[string]httpserver.Check, func(), error) {
	if c.StoreType != "postgres" {
		log.Info().Msg("Using in-memory session store")
		return memorystore.NewSessionStore(), nil, func() {}, nil
	}

	if err := c.PostgresStore.Validate(); err != nil {
		return nil, nil, nil, err
	}

	pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString:      c.PostgresStore.ConnString,
		MaxConns:        c.PostgresStore.MaxConns,
		MinConns:        c.PostgresStore.MinConns,
		MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
		MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Run migrations if enabled
	if c.PostgresStore.AutoMigrate {
		if err := postgresstore.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info().Msg("Database migrations completed")
	}

	log.Info().Msg("Using PostgreSQL session store")
	checks := map[string]httpserver.Check{"postgres": pool.Ping}
	return postgresstore.NewSessionStore(pool), checks, pool.Close, nil
}

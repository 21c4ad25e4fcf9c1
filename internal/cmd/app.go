package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/taspa/console/internal/config"
	"github.com/taspa/console/internal/credential"
	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/log"
	"github.com/taspa/console/internal/metrics"
	"github.com/taspa/console/internal/nav"
	"github.com/taspa/console/internal/platform"
	"github.com/taspa/console/internal/session"
	"github.com/taspa/console/internal/telemetry"
	"github.com/taspa/console/internal/version"
)

// logoutWait bounds how long a command waits for the detached server logout
// before the process exits.
const logoutWait = 3 * time.Second

// globalOptions are the persistent flags every command shares.
type globalOptions struct {
	configPath string
	home       string
	apiBase    string
	logLevel   string
	logFormat  string
	timeout    time.Duration
	format     string
	ephemeral  bool
}

func readGlobalOptions(cmd *cobra.Command) (*globalOptions, error) {
	f := cmd.Flags()
	var (
		o   globalOptions
		err error
	)
	if o.configPath, err = f.GetString("config"); err != nil {
		return nil, err
	}
	if o.home, err = f.GetString("home"); err != nil {
		return nil, err
	}
	if o.apiBase, err = f.GetString("api-base"); err != nil {
		return nil, err
	}
	if o.logLevel, err = f.GetString("log-level"); err != nil {
		return nil, err
	}
	if o.logFormat, err = f.GetString("log-format"); err != nil {
		return nil, err
	}
	if o.timeout, err = f.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if o.format, err = f.GetString("format"); err != nil {
		return nil, err
	}
	if o.ephemeral, err = f.GetBool("ephemeral"); err != nil {
		return nil, err
	}
	if o.format != "text" && o.format != "json" {
		return nil, errors.New(errors.ErrCodeInputInvalid, fmt.Sprintf("unknown output format %q", o.format)).
			WithSuggestion("Use --format text or --format json")
	}

	if o.home == "" {
		if o.home, err = config.DefaultHome(); err != nil {
			return nil, err
		}
	}
	if o.configPath == "" {
		o.configPath = config.Path(o.home, config.ConfigFile)
	}
	return &o, nil
}

// loadConfig reads the config file and applies flag overrides, which win over
// both the file and the environment.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	if o.apiBase != "" {
		cfg.APIBase = o.apiBase
	}
	if o.timeout != 0 {
		cfg.Timeout = o.timeout
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is the wired client stack a command runs against.
type app struct {
	opts   *globalOptions
	cfg    *config.Config
	logger *log.Logger

	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	telemetry *telemetry.Provider

	store  credential.Store
	jar    *credential.Jar
	client *platform.Client
	ctrl   *session.Controller
	router *nav.Router

	cleanup func()
}

// newApp loads configuration and wires the credential store, cookie jar, API
// client, session controller and router. Call close when done.
func newApp(cmd *cobra.Command) (*app, error) {
	opts, err := readGlobalOptions(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}

	logger := setupLogging(cfg, cmd.ErrOrStderr())
	tp, telemetryCleanup := setupTelemetry(cmd.Context(), cfg, logger)
	registry, m := metrics.NewRegistry()

	store, jar := openCredentials(opts)
	if err := jar.Err(); err != nil {
		logger.WithError(err).Warn("Ignoring unreadable cookie file")
	}

	client := platform.NewClient(cfg.APIBase, store,
		platform.WithJar(jar),
		platform.WithTimeout(cfg.Timeout),
		platform.WithLogger(logger),
		platform.WithMetrics(m),
		platform.WithTracerProvider(tp.TracerProvider()),
		platform.WithUserAgent(version.GetInfo().UserAgent()),
	)
	ctrl := session.New(client, store,
		session.WithCookieJar(jar),
		session.WithLogger(logger),
		session.WithMetrics(m),
		session.WithTracerProvider(tp.TracerProvider()),
	)
	client.OnUnauthorized(ctrl.Expire)

	router := nav.DefaultRouter(nav.WithRouterLogger(logger), nav.WithRouterMetrics(m))

	return &app{
		opts:      opts,
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		metrics:   m,
		telemetry: tp,
		store:     store,
		jar:       jar,
		client:    client,
		ctrl:      ctrl,
		router:    router,
		cleanup:   telemetryCleanup,
	}, nil
}

// openCredentials returns the token store and cookie jar under the home
// directory, or process-only ones with --ephemeral.
func openCredentials(opts *globalOptions) (credential.Store, *credential.Jar) {
	if opts.ephemeral {
		return credential.NewMemoryStore(), credential.NewJar("")
	}
	return credential.NewFileStore(config.Path(opts.home, config.CredentialsFile)),
		credential.NewJar(config.Path(opts.home, config.CookiesFile))
}

// close waits briefly for detached session work and flushes telemetry.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), logoutWait)
	defer cancel()
	if err := a.ctrl.Wait(ctx); err != nil {
		a.logger.Debug("detached session work still running at exit")
	}
	a.cleanup()
}

// authorize restores the session and checks that it may act on route. A
// missing session gets a hint to sign in.
func (a *app) authorize(ctx context.Context, route nav.Route) (session.Snapshot, error) {
	snap := a.ctrl.Init(ctx)
	if err := a.router.Authorize(route, snap); err != nil {
		a.metrics.IncError(string(errors.CodeOf(err)))
		if stderrors.Is(err, errors.ErrUnauthorized) {
			return snap, errors.NewUnauthorizedError().WithSuggestion("Sign in with 'taspa auth login'")
		}
		return snap, err
	}
	return snap, nil
}

// withApp runs fn against a wired app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(cmd.Context(), a)
}

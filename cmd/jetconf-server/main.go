package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/yndnr/jetconf-go/internal/datastore"
	"github.com/yndnr/jetconf-go/internal/infra/buildinfo"
	"github.com/yndnr/jetconf-go/internal/infra/confloader"
	"github.com/yndnr/jetconf-go/internal/infra/shutdown"
	"github.com/yndnr/jetconf-go/internal/infra/tlsroots"
	"github.com/yndnr/jetconf-go/internal/server/config"
	"github.com/yndnr/jetconf-go/internal/server/h2server"
	"github.com/yndnr/jetconf-go/internal/server/restconf"
	"github.com/yndnr/jetconf-go/internal/telemetry/logger"
	"github.com/yndnr/jetconf-go/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		printConfig = flag.Bool("print-config", false, "Print the effective configuration and exit")
	)
	flag.String("addr", "", "Listen address, overrides server.addr")
	flag.String("data-dir", "", "Datastore directory, overrides datastore.dir")
	flag.String("log-level", "", "Log level, overrides log.level")
	flag.Parse()

	if *showVersion {
		fmt.Printf("jetconf-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile, flagOverrides(flag.CommandLine))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if *printConfig {
		out, err := config.Dump(cfg)
		if err != nil {
			return err
		}
		os.Stdout.Write(out)
		return nil
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	info := buildinfo.Get()
	log.Info("starting jetconf-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := datastore.OpenBadger(datastore.BadgerConfig{
		Dir:      cfg.Datastore.Dir,
		InMemory: cfg.Datastore.InMemory,
	}, logger.Slog(log))
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}

	tlsCfg, watcher, err := initTLS(cfg, log)
	if err != nil {
		store.Close()
		return fmt.Errorf("init tls: %w", err)
	}

	routes := h2server.NewRoutes()
	restconf.New(restconf.Config{
		APIRoot:        cfg.HTTP.APIRoot,
		DocRoot:        cfg.HTTP.DocRoot,
		DocDefaultName: cfg.HTTP.DocDefaultName,
	}, store, restconf.NewOpRegistry(), restconf.NewACL(cfg.NACM.Enabled, cfg.NACM.AllowedUsers)).Register(routes)
	log.Debug("routes registered", "table", routes.String())

	metrics := metric.NewRegistry()

	srv, err := h2server.New(h2server.Config{
		Addr:             cfg.Server.ListenAddr(),
		TLSConfig:        tlsCfg,
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		Session: h2server.SessionConfig{
			ServerName:  buildinfo.ServerHeader(cfg.Server.ServerName),
			UploadLimit: cfg.HTTP.UploadLimitBytes(),
			RateLimit:   float64(cfg.HTTP.RateLimit),
		},
	}, routes, h2server.WithLogger(log), h2server.WithMetrics(metrics))
	if err != nil {
		store.Close()
		return fmt.Errorf("create server: %w", err)
	}

	// Bind before anything runs in the background so a bad address fails
	// startup.
	ln, err := srv.Listen()
	if err != nil {
		store.Close()
		return err
	}

	sh := shutdown.NewHandler(cfg.Server.ShutdownTimeout, log)

	// Hooks run in reverse: listener first, datastore last.
	sh.OnShutdown("datastore", func(ctx context.Context) error {
		return store.Close()
	})
	sh.OnShutdown("background", func(ctx context.Context) error {
		cancel()
		return nil
	})

	if watcher != nil {
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Error("certificate watcher stopped", "error", err)
			}
		}()
	}

	if cfg.Metrics.Addr != "" {
		metricsSrv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}
		sh.OnShutdown("metrics", metricsSrv.Shutdown)
		go func() {
			log.Info("metrics listening", "addr", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	sh.OnShutdown("listener", srv.Shutdown)
	go func() {
		log.Info("listening", "addr", ln.Addr().String(),
			"data_root", cfg.HTTP.DataRoot(), "ops_root", cfg.HTTP.OpsRoot())
		if err := srv.Serve(ctx, ln); err != nil {
			log.Error("server error", "error", err)
			serveErr <- err
			sh.Trigger("server error")
		}
	}()

	log.Info("server started, press Ctrl+C to stop")
	if err := sh.Wait(context.Background()); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	default:
	}

	log.Info("server stopped gracefully")
	return nil
}

// overrideFlags maps command-line flags to the config keys they replace.
var overrideFlags = map[string]string{
	"addr":      "server.addr",
	"data-dir":  "datastore.dir",
	"log-level": "log.level",
}

// flagOverrides returns the config keys of the override flags set on fs.
func flagOverrides(fs *flag.FlagSet) map[string]string {
	out := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		if key, ok := overrideFlags[f.Name]; ok {
			out[key] = f.Value.String()
		}
	})
	return out
}

// loadConfig loads configuration from defaults, file, environment and
// flag overrides, later sources winning.
func loadConfig(configFile string, overrides map[string]string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	for key, value := range overrides {
		opts = append(opts, confloader.WithOverride(key, value))
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger creates the logger and installs it as the process default.
func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// initTLS builds the server TLS config. The returned watcher is nil
// unless certificate reload is enabled.
func initTLS(cfg *config.ServerConfig, log logger.Logger) (*tls.Config, *tlsroots.Watcher, error) {
	pool, err := tlsroots.LoadCAFile(cfg.TLS.CAFile)
	if err != nil {
		return nil, nil, err
	}

	watcher, err := tlsroots.NewWatcher(cfg.TLS.CertFile, cfg.TLS.KeyFile,
		tlsroots.WithLogger(logger.Slog(log)))
	if err != nil {
		return nil, nil, err
	}

	tc := pool.ServerConfig(watcher.GetCertificate)
	if !cfg.TLS.Reload {
		return tc, nil, nil
	}
	return tc, watcher, nil
}

func metricsMux(m *metric.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

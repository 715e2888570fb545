package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"keyword_relay/internal/cache"
	"keyword_relay/internal/config"
	"keyword_relay/internal/metrics"
	"keyword_relay/internal/reply"
	"keyword_relay/internal/server"
	"keyword_relay/internal/source"
	"keyword_relay/internal/unmatched"
)

const shutdownTimeout = 15 * time.Second

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "LINE keyword auto-reply relay backed by spreadsheet rules",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// A missing .env is fine; the environment may already be set.
		_ = godotenv.Load()

		if path := viper.GetString("config"); path != "" {
			viper.SetConfigFile(path)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
	SilenceUsage: true,
}

func init() {
	config.SetDefaults(viper.GetViper())

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("addr", ":8050", "listen address")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("source", config.SourceSheets, `rule source, "sheets" or "file"`)
	flags.String("rules-dir", "rules", "directory of <table>.csv rule files for the file source")
	flags.Duration("cache-ttl", cache.DefaultTTL, "how long fetched rules are served before a refresh")
	flags.Bool("unicode-folding", false, "fold full-width forms, ligatures and Unicode spaces before matching")

	for key, flag := range map[string]string{
		"config":     "config",
		"addr":       "addr",
		"log_level":  "log-level",
		"log_format": "log-format",
		"source":     "source",
		"rules_dir":  "rules-dir",
		"cache_ttl":  "cache-ttl",

		"unicode_folding": "unicode-folding",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("relay")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Unprefixed names used by existing deployments
	bindEnv("google_credentials_json", "GOOGLE_CREDENTIALS_JSON")
	bindEnv("google_credentials_file", "GOOGLE_APPLICATION_CREDENTIALS")

	rootCmd.AddCommand(checkCmd)
}

func bindEnv(key string, envs ...string) {
	if err := viper.BindEnv(append([]string{key}, envs...)...); err != nil {
		panic(err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(viper.GetViper(), os.LookupEnv)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	src, appender, err := newSource(ctx, cfg)
	if err != nil {
		return err
	}

	ruleCache := cache.New(src,
		cache.WithTTL(cfg.CacheTTL),
		cache.WithFetchTimeout(cfg.FetchTimeout),
		cache.WithMode(cfg.MatchMode()),
		cache.WithLogger(logger),
		cache.WithMetrics(m),
	)

	if files, ok := src.(*source.Files); ok && cfg.WatchRules {
		w, err := cache.NewWatcher(ruleCache, files.Dir(), source.RuleFileExt, logger)
		if err != nil {
			logger.Warn("Rule file watcher disabled", slog.Any("error", err))
		} else {
			defer w.Close()
			go w.Run(ctx)
		}
	}

	recorder := unmatched.NewRecorder(appender, unmatched.Config{
		QueueSize:     cfg.UnmatchedQueue,
		AppendTimeout: cfg.FetchTimeout,
		Logger:        logger,
		Metrics:       m,
	})
	recorder.Start(ctx)

	tenants := make([]server.Tenant, 0, len(cfg.Tenants))
	for _, t := range cfg.Tenants {
		replier, err := reply.NewLINE(t.ChannelToken, cfg.ReplyTimeout, cfg.LINEEndpoint)
		if err != nil {
			return fmt.Errorf("tenant %s: %w", t.Name, err)
		}
		tenants = append(tenants, server.Tenant{
			Name:          t.Name,
			ChannelSecret: t.ChannelSecret,
			TableID:       t.TableID,
			Replier:       replier,
		})
	}

	ruleCache.Warm(ctx, cfg.TableIDs()...)

	srv := server.New(server.Options{
		Tenants:       tenants,
		Cache:         ruleCache,
		Recorder:      recorder,
		FallbackReply: cfg.FallbackReply,
		LogMatched:    cfg.LogMatched,
		ReplyTimeout:  cfg.ReplyTimeout,
		AdminToken:    cfg.AdminToken,
		Logger:        logger,
		Metrics:       m,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Addr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(
		srv.Shutdown(shutdownCtx),
		recorder.Close(shutdownCtx),
	)
}

// newSource returns the rule source and the unmatched log appender for the
// configured backend. Both are the same value.
func newSource(ctx context.Context, cfg *config.Config) (cache.Source, unmatched.Appender, error) {
	switch cfg.Source {
	case config.SourceFile:
		files := source.NewFiles(cfg.RulesDir)
		return files, files, nil
	case config.SourceSheets:
		svc, err := source.NewSheetsService(ctx, cfg.GoogleCredentialsFile, cfg.GoogleCredentialsJSON)
		if err != nil {
			return nil, nil, err
		}
		sheets := source.NewSheets(svc, cfg.RulesRange, cfg.UnmatchedRange)
		return sheets, sheets, nil
	default:
		return nil, nil, fmt.Errorf("%w, got %q", config.ErrBadSource, cfg.Source)
	}
}

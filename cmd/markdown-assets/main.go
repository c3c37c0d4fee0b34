package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	mdassets "github.com/always-cache/markdown-assets"
	watcher "github.com/always-cache/markdown-assets/pkg/resource-watcher"
)

var (
	// CLI flags
	configFilenameFlag string
	rootFlag           string
	prefixFlag         string
	portFlag           int
	providerFlag       string
	dbFilenameFlag     string
	watchFlag          bool
	minifyFlag         bool
	sweepIntervalFlag  time.Duration
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

var rootCmd = &cobra.Command{
	Use:   "markdown-assets",
	Short: "Serve a directory of Markdown files as cached HTML pages",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the resource root over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, settings)
	},
}

var renderCmd = &cobra.Command{
	Use:   "render <path.md>",
	Short: "Render one page of the resource root to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		logger := log.Logger.Level(zerolog.WarnLevel)
		server, err := mdassets.CreateServer(mdassets.Config{Settings: settings, Logger: &logger})
		if err != nil {
			return err
		}
		page, err := server.Render("/" + args[0])
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(page.Bytes)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	if version == "" {
		version = "DEV"
	}

	rootCmd.PersistentFlags().StringVar(&configFilenameFlag, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "Resource root directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&prefixFlag, "prefix", "", "URI prefix to serve under (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&minifyFlag, "minify", false, "Minify pages and stylesheets")
	rootCmd.PersistentFlags().BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	rootCmd.PersistentFlags().StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&providerFlag, "provider", "", "Cache provider: memory, sqlite or leveldb (overrides config)")
	serveCmd.Flags().StringVar(&dbFilenameFlag, "db", "", "Cache DB file or directory (overrides config)")
	serveCmd.Flags().BoolVar(&watchFlag, "watch", false, "Purge cached pages when their source changes")
	serveCmd.Flags().DurationVar(&sweepIntervalFlag, "sweep-interval", time.Minute, "Interval between removals of expired cache entries")

	rootCmd.AddCommand(serveCmd, renderCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Exiting")
		os.Exit(1)
	}
}

func setupLogging() error {
	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout}}
	if logFilenameFlag != "" {
		logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
		if err != nil {
			return fmt.Errorf("cannot open log file: %w", err)
		}
		logOutputs = append(logOutputs, logFileOutput)
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = zerolog.New(multiWriter).Level(logLevel).
		With().Timestamp().Str("version", version).Logger()
	return nil
}

// loadSettings reads the config file, if any, and applies the flags that were set.
func loadSettings(cmd *cobra.Command) (mdassets.Settings, error) {
	settings := mdassets.DefaultSettings()
	if configFilenameFlag != "" {
		var err error
		if settings, err = mdassets.LoadSettings(configFilenameFlag); err != nil {
			return settings, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("root") {
		settings.Server.ResourceRoot = rootFlag
	}
	if flags.Changed("prefix") {
		settings.Server.URIPrefix = prefixFlag
	}
	if flags.Changed("minify") {
		settings.Minify = minifyFlag
	}
	if flags.Changed("port") {
		settings.Server.Port = portFlag
	}
	if flags.Changed("provider") {
		settings.Storage.Provider = providerFlag
	}
	if flags.Changed("db") {
		settings.Storage.Path = dbFilenameFlag
	}
	if flags.Changed("watch") {
		settings.Watch = watchFlag
	}
	return settings, settings.Validate()
}

func serve(ctx context.Context, settings mdassets.Settings) error {
	store, closeStore, err := mdassets.OpenStorage(settings.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error().Err(err).Msg("Could not close cache storage")
		}
	}()

	server, err := mdassets.CreateServer(mdassets.Config{
		Settings:   settings,
		PageStore:  store,
		AssetStore: store,
		Logger:     &log.Logger,
	})
	if err != nil {
		return err
	}

	go server.Sweep(ctx, sweepIntervalFlag)

	if settings.Watch {
		w, err := watcher.New(server.Root(), server, log.Logger)
		if err != nil {
			return fmt.Errorf("cannot watch resource root: %w", err)
		}
		go w.Run(ctx)
	}

	r := chi.NewRouter()
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Trace().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Access")
	}))
	r.Use(middleware.Recoverer)
	r.Mount(settings.Server.URIPrefix, server)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", settings.Server.Port),
		Handler: r,
	}
	errs := make(chan error, 1)
	go func() {
		errs <- httpServer.ListenAndServe()
	}()
	log.Info().Msgf("Serving %s on port %v under %s", server.Root(), settings.Server.Port, settings.Server.URIPrefix)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

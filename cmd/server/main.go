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
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/manpreetbhatti/codecollab/internal/api"
	"github.com/manpreetbhatti/codecollab/internal/config"
	"github.com/manpreetbhatti/codecollab/internal/db"
	"github.com/manpreetbhatti/codecollab/internal/ratelimit"
	"github.com/manpreetbhatti/codecollab/internal/room"
	"github.com/manpreetbhatti/codecollab/internal/solution"
	"github.com/manpreetbhatti/codecollab/internal/sweeper"
	"github.com/manpreetbhatti/codecollab/internal/ws"
)

var (
	cfgFile string
	v       *viper.Viper
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "codecollab",
		Short: "Real-time mentor/student code rooms",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			v, err = config.New(cfgFile)
			if err != nil {
				return err
			}
			return bindFlags(v, cmd.Flags())
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
	flags := serveCmd.Flags()
	flags.Int(flagName(config.KeyPort), 5000, "listen port")
	flags.String(flagName(config.KeyDBPath), "./data/codecollab.db", "sqlite database path")
	flags.String(flagName(config.KeyStaticDir), "./client/dist", "directory with the built client, empty to disable")
	flags.String(flagName(config.KeySeedFile), "", "YAML exercises to load into an empty catalog")
	flags.String(flagName(config.KeyLogLevel), "info", "log level (debug, info, warn, error)")
	flags.String(flagName(config.KeyLogFormat), "text", "log format (text, json)")
	flags.Duration(flagName(config.KeyIdleTTL), 2*time.Hour, "expire rooms idle this long, 0 to disable")
	flags.Duration(flagName(config.KeySweepInterval), time.Minute, "how often to look for idle rooms")

	exercisesCmd := &cobra.Command{
		Use:   "exercises",
		Short: "List the exercise catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return listExercises(cmd.Context(), cfg)
		},
	}
	exercisesCmd.Flags().String(flagName(config.KeyDBPath), "./data/codecollab.db", "sqlite database path")

	root.AddCommand(serveCmd, exercisesCmd)
	root.RunE = serveCmd.RunE
	root.Flags().AddFlagSet(serveCmd.Flags())

	return root
}

// flagName turns a config key into its command-line spelling
func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// bindFlags binds every flag except --config to the config key it spells
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Name == "config" {
			return
		}
		err = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	return err
}

func runServer(cfg config.Config) error {
	logger := cfg.Logger()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer database.Close()
	logger.Info("database ready", "path", cfg.DBPath)

	if err := seed(context.Background(), database, cfg, logger); err != nil {
		return err
	}

	coord := room.NewCoordinator(room.NewTable(), room.NewRegistry(), logger)
	hub := ws.NewHub(coord, solution.NewChecker(database), database, ws.Config{
		MessagesPerSecond: cfg.WSRate,
		MessageBurst:      cfg.WSBurst,
	}, logger)
	go hub.Run()

	var sweep *sweeper.Service
	if cfg.IdleTTL > 0 {
		sweep = sweeper.New(hub, sweeper.Config{
			Interval: cfg.SweepInterval,
			IdleTTL:  cfg.IdleTTL,
		}, logger)
		sweep.Start()
	}

	httpLimiter := ratelimit.NewKeyed(cfg.HTTPRate, cfg.HTTPBurst, 10*time.Minute)
	defer httpLimiter.Stop()

	staticDir := cfg.StaticDir
	if staticDir != "" {
		if info, err := os.Stat(staticDir); err != nil || !info.IsDir() {
			logger.Warn("static directory not found, serving API only", "dir", staticDir)
			staticDir = ""
		}
	}

	apiHandler := api.New(hub, database, staticDir, logger)
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     api.CORSMiddleware(ratelimit.Middleware(httpLimiter, apiHandler.Routes())),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("codecollab server starting",
			"port", cfg.Port,
			"static_dir", staticDir,
			"idle_ttl", cfg.IdleTTL)
		logger.Info("endpoints",
			"websocket", "/ws?room={exerciseId}",
			"exercises", "GET /api/exercises",
			"exercise", "GET /api/exercises/{id}",
			"stats", "GET /api/stats",
			"health", "GET /health")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutting down server")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if sweep != nil {
		sweep.Stop()
	}
	hub.Stop()

	logger.Info("server stopped")
	return nil
}

func seed(ctx context.Context, database *db.Database, cfg config.Config, logger *slog.Logger) error {
	var (
		exercises []db.SeedExercise
		err       error
	)
	if cfg.SeedFile != "" {
		exercises, err = db.LoadSeedFile(cfg.SeedFile)
	} else {
		exercises, err = db.DefaultSeed()
	}
	if err != nil {
		return err
	}

	added, err := database.Seed(ctx, exercises)
	if err != nil {
		return fmt.Errorf("seed exercises: %w", err)
	}
	if added > 0 {
		logger.Info("database initialized with exercises", "count", added)
	}
	return nil
}

func listExercises(ctx context.Context, cfg config.Config) error {
	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	exercises, err := database.ListExercises(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, ex := range exercises {
		fmt.Fprintf(w, "%s\t%s\n", ex.ID, ex.Name)
	}
	return w.Flush()
}

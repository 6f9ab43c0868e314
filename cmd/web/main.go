package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdamBeresnev/duel-organizer/internal/config"
	"github.com/AdamBeresnev/duel-organizer/internal/db"
	"github.com/AdamBeresnev/duel-organizer/internal/service"
	"github.com/AdamBeresnev/duel-organizer/internal/store"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type cli struct {
	cfg    *config.Config
	dbPath string
	port   int
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "duel-organizer",
		Short: "Swiss tournaments with frozen deck collections",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				cfg.DatabasePath = c.dbPath
			}
			if cmd.Flags().Changed("port") {
				if err := config.ValidatePort(c.port); err != nil {
					return err
				}
				cfg.ServerPort = c.port
			}
			setupLogging(cfg)
			c.cfg = cfg
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&c.dbPath, "db", "", "SQLite database path (env: DATABASE_PATH)")
	rootCmd.PersistentFlags().IntVar(&c.port, "port", 0, "HTTP port (env: SERVER_PORT)")

	rootCmd.AddCommand(newServeCmd(c))
	rootCmd.AddCommand(newMigrateCmd(c))
	return rootCmd
}

func setupLogging(cfg *config.Config) {
	zerolog.SetGlobalLevel(cfg.LogLevel)
	if cfg.LogFormat == config.LogFormatJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.Open(c.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := db.RunMigrations(database.DB); err != nil {
				return err
			}

			server := &http.Server{
				Addr:              c.cfg.Addr(),
				Handler:           newRouter(newApplication(database, clockwork.NewRealClock())),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			serveErr := make(chan error, 1)
			go func() {
				log.Info().Str("addr", server.Addr).Msg("server starting")
				serveErr <- server.ListenAndServe()
			}()

			select {
			case err := <-serveErr:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

func newMigrateCmd(c *cli) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(c, func(database *sqlx.DB) error {
				return db.RunMigrations(database.DB)
			})
		},
	})

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1, got %d", steps)
			}
			return withDatabase(c, func(database *sqlx.DB) error {
				if err := db.RollbackMigrations(database.DB, steps); err != nil {
					return err
				}
				log.Info().Int("steps", steps).Msg("migrations rolled back")
				return nil
			})
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(downCmd)

	return migrateCmd
}

func withDatabase(c *cli, fn func(*sqlx.DB) error) error {
	database, err := db.Open(c.cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(database)
}

type application struct {
	users       *store.UserStore
	userService *service.UserService
	tournaments *service.TournamentService
	matches     *service.MatchService
	snapshots   *service.SnapshotService
	cards       *service.CustomCardService
	collections *service.CollectionService
}

func newApplication(database *sqlx.DB, clock clockwork.Clock) *application {
	userStore := store.NewUserStore(database)
	tournamentStore := store.NewTournamentStore(database)
	customCollections := store.NewCustomCollectionStore()
	cardStore := store.NewCustomCardStore(database)

	snapshots := service.NewSnapshotService(database, tournamentStore, store.NewStandardCollectionStore(), customCollections, clock)

	return &application{
		users:       userStore,
		userService: service.NewUserService(userStore, clock),
		tournaments: service.NewTournamentService(database, tournamentStore, snapshots, clock, nil),
		matches:     service.NewMatchService(database, tournamentStore),
		snapshots:   snapshots,
		cards:       service.NewCustomCardService(database, cardStore, customCollections, tournamentStore, clock),
		collections: service.NewCollectionService(database, snapshots, cardStore, clock),
	}
}

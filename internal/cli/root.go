// Package cli implements the pharmacy command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"

	rd "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pharmacy_inventory/internal/config"
	"pharmacy_inventory/internal/events"
	"pharmacy_inventory/internal/inventory"
	"pharmacy_inventory/internal/store"
)

// exitCodeError carries a process exit code out of a command.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute runs the root command and returns the process exit code.
func Execute() int {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		var ec *exitCodeError
		if errors.As(err, &ec) {
			return ec.code
		}
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

// runtime is shared by every subcommand of one root.
type runtime struct {
	v *viper.Viper
}

func NewRootCommand() *cobra.Command {
	rt := &runtime{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "pharmacy",
		Short: "Manage the pharmacy inventory",
		Long: `Manage the pharmacy inventory from the command line.

Settings come from the same environment variables as the server
(DB_DRIVER, DB_PATH, DB_DSN, LOG_LEVEL, ...); --db and --driver override them.

Examples:
  pharmacy seed                      # load sample medications into an empty store
  pharmacy list --sort price --desc  # most expensive first
  pharmacy adjust                    # interactive quantity updates`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("db", "", "database path (sqlite) or DSN; overrides DB_PATH/DB_DSN")
	flags.String("driver", "", "database driver: sqlite, postgres or mysql; overrides DB_DRIVER")
	_ = rt.v.BindPFlag("DB_DSN", flags.Lookup("db"))
	_ = rt.v.BindPFlag("DB_DRIVER", flags.Lookup("driver"))

	root.AddCommand(
		newInitCommand(rt),
		newSeedCommand(rt),
		newListCommand(rt),
		newAddCommand(rt),
		newSetCommand(rt),
		newNamesCommand(rt),
		newShowCommand(rt),
		newHistoryCommand(rt),
		newAdjustCommand(rt),
		newServeCommand(rt),
	)
	return root
}

func (rt *runtime) loadConfig(cmd *cobra.Command) (config.AppConfig, error) {
	cfg, err := config.LoadFrom(rt.v)
	if err != nil {
		return config.AppConfig{}, err
	}
	config.ConfigureLogging(cfg)
	log.SetOutput(cmd.ErrOrStderr())
	return cfg, nil
}

// withService opens the store for the length of one command. Stock events go
// to the Redis outbox when it is configured, so CLI changes are audited too.
func (rt *runtime) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *inventory.Service) error) error {
	cfg, err := rt.loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(store.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN, Debug: cfg.DBDebug})
	if err != nil {
		return userFacing(err)
	}
	defer st.Close()
	if err := st.Initialize(ctx); err != nil {
		return userFacing(err)
	}

	var sink inventory.EventSink
	if cfg.RedisEnabled() && cfg.EventsEnabled {
		rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer rdb.Close()
		sink = events.NewStreamSink(rdb, cfg.StockEventStream, cfg.StockEventStreamMax)
	}
	return fn(ctx, inventory.NewService(st, sink))
}

// userFacing keeps the detail in the debug log and returns the message a
// user should see.
func userFacing(err error) error {
	if err == nil {
		return nil
	}
	log.WithError(err).Debug("command failed")
	return errors.New(inventory.UserMessage(err))
}

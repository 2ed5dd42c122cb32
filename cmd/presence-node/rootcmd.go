package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sweeney/presence-node/internal/config"
	"github.com/sweeney/presence-node/internal/store"
)

// app carries the configuration shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:          "presence-node",
		Short:        "BLE proximity presence node",
		Long:         `presence-node scans for Bluetooth LE advertisements, tracks nearby devices and switches a relay and LED while a known device is within its RSSI threshold.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", `path to a YAML config file`)
	config.BindStoreFlags(a.v, root.PersistentFlags())

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newKnownCmd(a))
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	a.cfg = cfg
	return nil
}

// openStore opens the SQLite database at path. An empty path keeps
// everything in memory for the lifetime of the process.
func openStore(path string) (store.Store, error) {
	if path == "" {
		log.WithField("component", "store").Warn("no database path, settings will not persist")
		return store.NewMemory(), nil
	}
	st, err := store.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// lockDatabase takes the exclusive lock on the database at path. An empty
// path needs no lock.
func lockDatabase(path string) (*store.Lock, error) {
	if path == "" {
		return nil, nil
	}
	return store.AcquireLock(path)
}

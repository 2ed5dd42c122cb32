package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/presence-node/internal/logic"
	"github.com/sweeney/presence-node/internal/store"
)

func newKnownCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "known",
		Short: "manages the known-device registry",
		Long: `Manages the known-device registry stored in the database.

A running node owns the registry and locks the database. While it runs, list
and export still work but add, remove and import are refused: edit through the
node's HTTP API instead, or stop the node first.`,
	}
	cmd.AddCommand(newKnownListCmd(a))
	cmd.AddCommand(newKnownAddCmd(a))
	cmd.AddCommand(newKnownRemoveCmd(a))
	cmd.AddCommand(newKnownExportCmd(a))
	cmd.AddCommand(newKnownImportCmd(a))
	return cmd
}

// errNodeRunning is returned for registry edits while a node holds the
// database lock.
var errNodeRunning = errors.New("a running node owns the registry; use its HTTP API or stop it first")

// withRegistry loads the registry into an engine, runs fn and, if mutate is
// set, saves the registry back. Mutations hold the database lock throughout.
func (a *app) withRegistry(mutate bool, fn func(e *logic.Engine) error) error {
	if a.cfg.DBPath == "" {
		return errors.New("no database configured (set --db)")
	}
	if mutate {
		lock, err := lockDatabase(a.cfg.DBPath)
		if err != nil {
			if errors.Is(err, store.ErrLocked) {
				return fmt.Errorf("%s: %w", a.cfg.DBPath, errNodeRunning)
			}
			return err
		}
		defer lock.Release()
	}
	st, err := openStore(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	e := logic.NewEngine(a.cfg.Limits(), st)
	if err := e.Load(); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	if err := fn(e); err != nil {
		return err
	}
	if mutate {
		if err := e.Registry().Save(); err != nil {
			return fmt.Errorf("save registry: %w", err)
		}
	}
	return nil
}

func newKnownListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "lists the known devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(false, func(e *logic.Engine) error {
				return writeKnownTable(cmd.OutOrStdout(), e.Registry())
			})
		},
	}
}

func writeKnownTable(w io.Writer, r *logic.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tADDRESS\tTHRESHOLD\tCOMMENT")
	for i, k := range r.Entries() {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", i, k.Address, k.RSSIThreshold, k.Comment)
	}
	fmt.Fprintf(tw, "\n%d/%d known\n", r.Len(), r.Cap())
	return tw.Flush()
}

func newKnownAddCmd(a *app) *cobra.Command {
	var comment string
	var threshold int

	cmd := &cobra.Command{
		Use:   "add ADDRESS",
		Short: "adds a known device, or updates it if already known",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("threshold") {
				threshold = a.cfg.DefaultRSSIThreshold
			}
			addr := logic.NormalizeAddress(args[0])
			return a.withRegistry(true, func(e *logic.Engine) error {
				i, err := e.AddKnown(addr, comment, threshold)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s known at index %d (threshold %d dBm)\n", addr, i, threshold)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", `free-text label for the device`)
	cmd.Flags().IntVar(&threshold, "threshold", logic.DefaultRSSIThreshold, `RSSI threshold in dBm (defaults to the configured threshold)`)
	return cmd
}

func newKnownRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove ADDRESS",
		Aliases: []string{"rm"},
		Short:   "removes a known device",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := logic.NormalizeAddress(args[0])
			return a.withRegistry(true, func(e *logic.Engine) error {
				if !e.RemoveKnown(addr) {
					return fmt.Errorf("%s: %w", addr, logic.ErrNotFound)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s removed\n", addr)
				return nil
			})
		},
	}
}

func newKnownExportCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "writes the registry as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(false, func(e *logic.Engine) error {
				data, err := e.ExportJSON(time.Now())
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return err
				}
				return os.WriteFile(out, data, 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", `output file (stdout when empty)`)
	return cmd
}

func newKnownImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "merges a JSON registry export into the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return a.withRegistry(true, func(e *logic.Engine) error {
				res, err := e.ImportJSON(data, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported: %d new, %d updated, %d skipped\n", res.New, res.Updated, res.Skipped)
				return nil
			})
		},
	}
}

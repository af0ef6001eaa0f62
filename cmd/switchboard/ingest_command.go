package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"switchboard/internal/callerid"
	"switchboard/internal/ledger"
	"switchboard/internal/watcher"
)

// newIngestCommand registers a recording directly, bypassing the watcher's
// stability checks. Useful for importing recordings copied in while the
// daemon was down or stored outside the watched directory.
func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <recording>...",
		Short: "Register recordings with the ledger manually",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, arg := range args {
				path, err := filepath.Abs(arg)
				if err != nil {
					return err
				}
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("recording %s: %w", arg, err)
				}

				identity, err := watcher.DeriveIdentity(path)
				if err != nil {
					return fmt.Errorf("derive identity for %s: %w", arg, err)
				}
				caller := callerid.Resolve(path, cfg.Caller.DefaultPhone, cfg.Caller.DefaultLanguage)

				_, created, err := store.CreateIfAbsent(cmd.Context(), identity, path, caller.Phone)
				if err != nil {
					return fmt.Errorf("register %s: %w", arg, err)
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "registered %s as %s\n", arg, identity)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s already registered as %s\n", arg, identity)
				}
			}
			return nil
		},
	}
}

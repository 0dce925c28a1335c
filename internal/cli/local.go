package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibe-dev/academy/internal/app/engagement"
	"github.com/vibe-dev/academy/internal/daemon"
	"github.com/vibe-dev/academy/internal/infra/catalog"
	"github.com/vibe-dev/academy/internal/infra/localstore"
)

func init() {
	localCmd.AddCommand(localShowCmd, localClearCmd, localPendingCmd)
	rootCmd.AddCommand(localCmd)
}

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Inspect or clear the device-local progress mirror",
}

var localShowCmd = &cobra.Command{
	Use:   "show USER",
	Short: "Print a learner's local mirror record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMirror(func(m *engagement.Mirror) error {
			rec, err := m.Load(args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No local record for %s.\n", args[0])
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		})
	},
}

var localPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List learners with unsynced local progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMirror(func(m *engagement.Mirror) error {
			users, err := m.DirtyUsers()
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing waiting to sync.")
				return nil
			}
			for _, uid := range users {
				fmt.Fprintln(cmd.OutOrStdout(), uid)
			}
			return nil
		})
	},
}

var localClearCmd = &cobra.Command{
	Use:   "clear USER",
	Short: "Delete a learner's local mirror record",
	Long: `Delete a learner's local mirror record. Unsynced progress in the
record is lost; run 'vibe reconcile USER' first to keep it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMirror(func(m *engagement.Mirror) error {
			if err := m.Clear(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared local record for %s.\n", args[0])
			return nil
		})
	},
}

// withMirror opens only the local store. The remote store is not needed
// to inspect or clear the mirror.
func withMirror(fn func(*engagement.Mirror) error) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	store, err := localstore.Open(cfg.Local.Dir)
	if err != nil {
		return err
	}
	defer store.Close()

	cat, err := catalog.LoadFile(cfg.Catalog.File)
	if err != nil {
		return err
	}
	levels, err := engagement.NewLevelTable(cat.Levels)
	if err != nil {
		return err
	}
	return fn(engagement.NewMirror(store, levels, cfg.EngineConfig().Streak))
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Force an immediate full sync",
	}

	cmd.AddCommand(newSyncNowCmd())

	return cmd
}

func newSyncNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Force a FullShadowSync of every enrolled identity",
		Long: `Opens the local store and cloud client, starts the sync handler,
injects a FullShadowSync for every thing/shadow in the active
configuration (the same injection the handler performs on startup and on
reconnect), waits for the queue to drain, then stops.`,
		RunE: runSyncNow,
	}
}

func runSyncNow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	rt, err := buildRuntime(cmd.Context(), cc)
	if err != nil {
		return err
	}
	defer rt.Close()

	syncCfg := syncConfiguration(cc)
	if err := rt.handler.StartSyncingShadows(cmd.Context(), syncCfg); err != nil {
		return fmt.Errorf("starting sync handler: %w", err)
	}

	cc.Statusf("syncing %d identities...\n", len(syncCfg.Identities()))

	waitForQueueDrain(cmd.Context(), rt)

	rt.handler.StopSyncingShadows()

	cc.Statusf("done\n")

	return nil
}

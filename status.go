package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
	"github.com/greengrass-edge/shadow-sync/internal/sync"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync state of every enrolled shadow",
		Long: `Display the per-identity cloud-sync bookkeeping record for every
thing/shadow enrolled in the active configuration: the last-known cloud
version, whether the cloud side is tombstoned, and when the identity last
finished a sync.`,
		RunE: runStatus,
	}
}

// statusRow is the status command's JSON/text row shape for one identity.
type statusRow struct {
	ThingName    string `json:"thing_name"`
	ShadowName   string `json:"shadow_name,omitempty"`
	CloudVersion int64  `json:"cloud_version"`
	CloudDeleted bool   `json:"cloud_deleted"`
	LastSyncTime string `json:"last_sync_time"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	store, err := sync.NewSQLiteStore(cmd.Context(), cc.Flags.DBPath, cc.Logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	identities := syncConfiguration(cc).Identities()
	rows, err := buildStatusRows(cmd.Context(), store, identities)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printStatusJSON(rows)
	}

	printStatusText(rows)

	return nil
}

func buildStatusRows(ctx context.Context, store sync.Store, identities []shadowid.Identity) ([]statusRow, error) {
	rows := make([]statusRow, 0, len(identities))

	for _, id := range identities {
		rec, err := store.GetSync(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reading sync record for %s: %w", id.String(), err)
		}

		row := statusRow{ThingName: id.ThingName, ShadowName: id.ShadowName}

		if rec != nil {
			row.CloudVersion = rec.CloudVersion
			row.CloudDeleted = rec.CloudDeleted
			row.LastSyncTime = formatUnixTime(rec.LastSyncTime)
		} else {
			row.LastSyncTime = formatUnixTime(0)
		}

		rows = append(rows, row)
	}

	return rows, nil
}

func printStatusJSON(rows []statusRow) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printStatusText(rows []statusRow) {
	if len(rows) == 0 {
		fmt.Println("No shadows enrolled. Check synchronize.shadowDocuments(Map) in the config file.")

		return
	}

	headers := []string{"THING", "SHADOW", "CLOUD VERSION", "DELETED", "LAST SYNC"}

	tableRows := make([][]string, 0, len(rows))
	for _, r := range rows {
		shadow := r.ShadowName
		if shadow == "" {
			shadow = "(classic)"
		}

		tableRows = append(tableRows, []string{
			r.ThingName,
			shadow,
			fmt.Sprintf("%d", r.CloudVersion),
			fmt.Sprintf("%t", r.CloudDeleted),
			r.LastSyncTime,
		})
	}

	printTable(os.Stdout, headers, tableRows)
}

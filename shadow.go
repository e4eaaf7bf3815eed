package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
	"github.com/greengrass-edge/shadow-sync/internal/sync"
)

func newShadowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shadow",
		Short: "Inspect and mutate local shadow documents",
	}

	cmd.AddCommand(newShadowGetCmd())
	cmd.AddCommand(newShadowUpdateCmd())
	cmd.AddCommand(newShadowDeleteCmd())

	return cmd
}

func identityFromArgs(thing, shadow string) (shadowid.Identity, error) {
	return shadowid.New(thing, shadow)
}

// openLocalIngress opens the store and wires a Handler bound to the
// configured strategy, returning a LocalIngress adapter and a cleanup that
// stops the strategy and closes the store. LocalIngress is the reference
// IngressHandler in internal/sync/ipc.go.
func openLocalIngress(cmd *cobra.Command, cc *CLIContext) (*sync.LocalIngress, func(), error) {
	rt, err := buildRuntime(cmd.Context(), cc)
	if err != nil {
		return nil, nil, err
	}

	if err := rt.handler.StartSyncingShadows(cmd.Context(), syncConfiguration(cc)); err != nil {
		rt.Close()

		return nil, nil, fmt.Errorf("starting sync handler: %w", err)
	}

	ingress := sync.NewLocalIngress(rt.store, rt.handler, rt.locks, rt.gate, cc.Config.ShadowDocumentSizeLimitBytes)

	cleanup := func() {
		rt.handler.StopSyncingShadows()
		rt.Close()
	}

	return ingress, cleanup, nil
}

func newShadowGetCmd() *cobra.Command {
	var shadowName string

	cmd := &cobra.Command{
		Use:   "get <thing-name>",
		Short: "Print a shadow document's local state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			id, err := identityFromArgs(args[0], shadowName)
			if err != nil {
				return err
			}

			ingress, cleanup, err := openLocalIngress(cmd, cc)
			if err != nil {
				return err
			}
			defer cleanup()

			doc, err := ingress.GetShadow(cmd.Context(), id)
			if err != nil {
				return err
			}

			return printDocument(os.Stdout, doc)
		},
	}

	cmd.Flags().StringVar(&shadowName, "name", "", "named-shadow name (omit for the classic shadow)")

	return cmd
}

func newShadowUpdateCmd() *cobra.Command {
	var shadowName, payloadPath, clientToken string

	cmd := &cobra.Command{
		Use:   "update <thing-name>",
		Short: "Apply a local shadow update from a JSON payload",
		Long: `Reads a JSON update document (desired/reported state, matching
the {"state": {...}} wire shape) from --file, or stdin if --file is "-",
applies it to the local store, and notifies the sync handler so the
change propagates to the cloud.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			id, err := identityFromArgs(args[0], shadowName)
			if err != nil {
				return err
			}

			payload, err := readPayload(payloadPath)
			if err != nil {
				return err
			}

			if !gjson.GetBytes(payload, "state").Exists() {
				return fmt.Errorf("update payload for %s is missing a top-level \"state\" key", id.String())
			}

			if clientToken == "" {
				clientToken = uuid.NewString()
			}

			ingress, cleanup, err := openLocalIngress(cmd, cc)
			if err != nil {
				return err
			}
			defer cleanup()

			doc, err := ingress.UpdateShadow(cmd.Context(), id, payload, clientToken)
			if err != nil {
				return err
			}

			return printDocument(os.Stdout, doc)
		},
	}

	cmd.Flags().StringVar(&shadowName, "name", "", "named-shadow name (omit for the classic shadow)")
	cmd.Flags().StringVar(&payloadPath, "file", "-", "path to the JSON update payload, or - for stdin")
	cmd.Flags().StringVar(&clientToken, "client-token", "", "opaque token echoed back in reject events")

	return cmd
}

func newShadowDeleteCmd() *cobra.Command {
	var shadowName string

	cmd := &cobra.Command{
		Use:   "delete <thing-name>",
		Short: "Tombstone a shadow document locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			id, err := identityFromArgs(args[0], shadowName)
			if err != nil {
				return err
			}

			ingress, cleanup, err := openLocalIngress(cmd, cc)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := ingress.DeleteShadow(cmd.Context(), id); err != nil {
				return err
			}

			cc.Statusf("deleted %s\n", id.String())

			return nil
		},
	}

	cmd.Flags().StringVar(&shadowName, "name", "", "named-shadow name (omit for the classic shadow)")

	return cmd
}

func readPayload(path string) ([]byte, error) {
	if path == "-" || path == "" {
		return io.ReadAll(os.Stdin)
	}

	return os.ReadFile(path)
}

// wireDocumentView is the CLI's JSON rendering of a shadow document.
type wireDocumentView struct {
	State     sync.State    `json:"state"`
	Metadata  sync.Metadata `json:"metadata,omitempty"`
	Version   int64         `json:"version"`
	Timestamp int64         `json:"timestamp,omitempty"`
}

func printDocument(w io.Writer, doc *sync.Document) error {
	if doc == nil {
		_, err := fmt.Fprintln(w, "{}")

		return err
	}

	view := wireDocumentView{State: doc.State, Metadata: doc.Metadata, Version: doc.Version, Timestamp: doc.Timestamp}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(view)
}

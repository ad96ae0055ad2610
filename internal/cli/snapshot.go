package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stateres/internal/event"
	"github.com/roach88/stateres/internal/eventauth"
	"github.com/roach88/stateres/internal/store"
)

// SnapshotResult is the JSON payload of snapshot put and get.
type SnapshotResult struct {
	Name    string                `json:"name"`
	RoomID  event.RoomID          `json:"room_id"`
	Version eventauth.RoomVersion `json:"version"`
	State   []event.StateEntry    `json:"state"`
}

// NewSnapshotCommand creates the snapshot command group.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage named state snapshots",
		Long: `Manage named state snapshots in the store.

Snapshots hold a room's state set under a name so resolve can use them
with --snapshot.

Examples:
  stateres snapshot put --db room.db --room '!r:example.org' fork-a a.json
  stateres snapshot get --db room.db fork-a
  stateres snapshot list --db room.db`,
	}

	cmd.AddCommand(newSnapshotPutCommand(rootOpts))
	cmd.AddCommand(newSnapshotGetCommand(rootOpts))
	cmd.AddCommand(newSnapshotListCommand(rootOpts))
	return cmd
}

func newSnapshotPutCommand(rootOpts *RootOptions) *cobra.Command {
	var roomID, version string

	cmd := &cobra.Command{
		Use:           "put <name> <state-file>",
		Short:         "Store a state file as a named snapshot",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if roomID == "" {
				return NewExitError(ExitCommandError, "--room is required")
			}
			v := eventauth.RoomVersion(version)
			if v == "" {
				v = eventauth.RoomV10
			}
			if _, err := eventauth.RulesFor(v); err != nil {
				return WrapExitError(ExitCommandError, "invalid --version", err)
			}

			state, err := readStateFile(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read state file", err)
			}

			st, err := rootOpts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			snap := store.Snapshot{Name: args[0], RoomID: event.RoomID(roomID), Version: v, State: state}
			if err := st.WriteSnapshot(cmd.Context(), snap); err != nil {
				return WrapExitError(ExitCommandError, "failed to write snapshot", err)
			}
			return newFormatter(rootOpts, cmd).Success(snapshotResult(snap),
				fmt.Sprintf("Stored snapshot %s (%d entries)", snap.Name, len(state)))
		},
	}

	cmd.Flags().StringVar(&roomID, "room", "", "room id (required)")
	cmd.Flags().StringVar(&version, "version", rootOpts.Config.RoomVersion, versionUsage())
	return cmd
}

func newSnapshotGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <name>",
		Short:         "Print a named snapshot",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rootOpts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			snap, err := st.ReadSnapshot(cmd.Context(), args[0])
			if errors.Is(err, store.ErrSnapshotNotFound) {
				return WrapExitError(ExitFailure, "snapshot not found", err)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read snapshot", err)
			}

			canonical, err := snap.State.MarshalCanonical()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to encode state", err)
			}
			return newFormatter(rootOpts, cmd).Success(snapshotResult(snap), string(canonical))
		},
	}
}

func newSnapshotListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List named snapshots",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rootOpts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			infos, err := st.ListSnapshots(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list snapshots", err)
			}

			var b strings.Builder
			if len(infos) == 0 {
				b.WriteString("No snapshots.")
			}
			for i, info := range infos {
				if i > 0 {
					b.WriteString("\n")
				}
				fmt.Fprintf(&b, "%s\t%s\tv%s\t%d entries", info.Name, info.RoomID, info.Version, info.Entries)
			}
			return newFormatter(rootOpts, cmd).Success(infos, b.String())
		},
	}
}

func snapshotResult(snap store.Snapshot) SnapshotResult {
	return SnapshotResult{
		Name:    snap.Name,
		RoomID:  snap.RoomID,
		Version: snap.Version,
		State:   snap.State.Entries(),
	}
}
